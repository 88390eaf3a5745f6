package config

import "fmt"

// SMTPConfig holds mail delivery settings for reports
type SMTPConfig struct {
	Host     string `hcl:"host"`
	Port     int    `hcl:"port,optional"`
	Username string `hcl:"username,optional"`
	Password string `hcl:"password,optional"`
	From     string `hcl:"from"`
}

// ReportConfig defines a recurring research digest
type ReportConfig struct {
	Name       string      `hcl:"name,label"`
	Title      string      `hcl:"title,optional"`
	Queries    []string    `hcl:"queries"`
	Recipients []string    `hcl:"recipients,optional"`
	SMTP       *SMTPConfig `hcl:"smtp,block"`
}

// Validate checks that the report configuration is valid
func (r *ReportConfig) Validate() error {
	if len(r.Queries) == 0 {
		return fmt.Errorf("report must have at least one query")
	}
	if len(r.Recipients) > 0 && r.SMTP == nil {
		return fmt.Errorf("recipients require an smtp block")
	}
	if r.SMTP != nil {
		if r.SMTP.Host == "" {
			return fmt.Errorf("smtp host is required")
		}
		if r.SMTP.From == "" {
			return fmt.Errorf("smtp from address is required")
		}
	}
	return nil
}

// SMTPAddr returns the host:port address for the SMTP server
func (s *SMTPConfig) SMTPAddr() string {
	port := s.Port
	if port == 0 {
		port = 587
	}
	return fmt.Sprintf("%s:%d", s.Host, port)
}
