package payload

// 分页与列表的统一返回格式
type (
	ListResp[T any] struct {
		Rows  []T   `json:"rows"`
		Count int64 `json:"count"`
	}

	// ProgressResp 审批进度，供仪表盘进度条使用
	ProgressResp struct {
		Completed int `json:"completed"`
		Total     int `json:"total"`
	}
)
