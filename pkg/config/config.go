package config

import (
	"os"
	"sync"

	"github.com/gin-gonic/gin"
	"k8s.io/klog/v2"
	"sigs.k8s.io/yaml"
)

type Config struct {
	// Port Settings
	Host        string `json:"host"`        // The domain name of the server.
	ServerAddr  string `json:"serverAddr"`  // The address the server endpoint binds to.
	MetricsAddr string `json:"metricsAddr"` // The address the metrics endpoint binds to.

	Auth struct {
		AccessTokenSecret      string `json:"accessTokenSecret"`
		RefreshTokenSecret     string `json:"refreshTokenSecret"`
		AccessTokenExpiryHour  int    `json:"accessTokenExpiryHour"`
		RefreshTokenExpiryHour int    `json:"refreshTokenExpiryHour"`
	} `json:"auth"`

	Postgres struct {
		Host        string `json:"host"`
		Port        string `json:"port"`
		DBName      string `json:"dbname"`
		User        string `json:"user"`
		Password    string `json:"password"`
		SSLMode     string `json:"sslmode"`
		TimeZone    string `json:"TimeZone"`
		ReplicaHost string `json:"replicaHost"` // Optional read replica for list views.
	} `json:"postgres"`

	SMTP struct {
		Enable   bool   `json:"enable"`
		Host     string `json:"host"`
		Port     int    `json:"port"`
		User     string `json:"user"`
		Password string `json:"password"`
		From     string `json:"from"`
	} `json:"smtp"`

	// Webhook receives approval events for the dashboard activity feed.
	Webhook struct {
		Enable bool   `json:"enable"`
		URL    string `json:"url"`
		Token  string `json:"token"`
	} `json:"webhook"`

	// Escalation policy: a scheduled job that nags assignees of stages
	// stuck in review. It acts through the ordinary engine API and does
	// not change the state machine's contract.
	Escalation struct {
		Enable           bool   `json:"enable"`
		Spec             string `json:"spec"`             // cron spec, e.g. "0 * * * *"
		RemindAfterHours int    `json:"remindAfterHours"` // stages older than this get a reminder
		// Optional stages stuck longer than this are skipped on behalf of
		// an override account, through the ordinary action API. 0 disables.
		AutoSkipAfterHours int `json:"autoSkipAfterHours"`
	} `json:"escalation"`

	LDAP struct {
		Enable   bool   `json:"enable"`
		Address  string `json:"address"`
		UserName string `json:"userName"`
		Password string `json:"password"`
		SearchDN string `json:"searchDN"`
	} `json:"ldap"`
}

var (
	once   sync.Once
	config *Config
)

func GetConfig() *Config {
	once.Do(func() {
		config = initConfig()
	})
	return config
}

func IsDebugMode() bool {
	return gin.Mode() == gin.DebugMode
}

// initConfig reads the configuration file. In debug mode it reads
// debug-config.yaml (path overridable via DIRECTOR_DEBUG_CONFIG_PATH),
// otherwise the config.yaml mounted from the ConfigMap.
func initConfig() *Config {
	// 读取配置文件
	config := &Config{}
	var configPath string
	if IsDebugMode() {
		if os.Getenv("DIRECTOR_DEBUG_CONFIG_PATH") != "" {
			configPath = os.Getenv("DIRECTOR_DEBUG_CONFIG_PATH")
		} else {
			configPath = "./etc/debug-config.yaml"
		}
	} else {
		configPath = "/etc/config/config.yaml"
	}
	klog.Info("config path: ", configPath)

	err := readConfig(configPath, config)
	if err != nil {
		klog.Error("init config", err)
		panic(err)
	}
	return config
}

func readConfig(filePath string, config *Config) error {
	// 读取 YAML 配置文件
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	// 解析 YAML 数据到结构体
	return yaml.Unmarshal(data, config)
}
