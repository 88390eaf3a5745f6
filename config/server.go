package config

// ServerConfig holds settings for the websocket event server
type ServerConfig struct {
	Addr string `hcl:"addr,optional"`
}

// ListenAddr returns the configured address or the default
func (s *ServerConfig) ListenAddr() string {
	if s == nil || s.Addr == "" {
		return "localhost:8321"
	}
	return s.Addr
}
