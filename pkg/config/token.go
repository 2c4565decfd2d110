package config

// TokenConf carries the JWT signing configuration.
type TokenConf struct {
	AccessTokenSecret      string
	RefreshTokenSecret     string
	AccessTokenExpiryHour  int
	RefreshTokenExpiryHour int
}

const (
	defaultAccessExpiryHour  = 2
	defaultRefreshExpiryHour = 168
)

func NewTokenConf() *TokenConf {
	conf := GetConfig()
	tc := &TokenConf{
		AccessTokenSecret:      conf.Auth.AccessTokenSecret,
		RefreshTokenSecret:     conf.Auth.RefreshTokenSecret,
		AccessTokenExpiryHour:  conf.Auth.AccessTokenExpiryHour,
		RefreshTokenExpiryHour: conf.Auth.RefreshTokenExpiryHour,
	}
	if tc.AccessTokenExpiryHour == 0 {
		tc.AccessTokenExpiryHour = defaultAccessExpiryHour
	}
	if tc.RefreshTokenExpiryHour == 0 {
		tc.RefreshTokenExpiryHour = defaultRefreshExpiryHour
	}
	return tc
}
