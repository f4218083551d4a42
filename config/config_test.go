package config

import (
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server:     ServerConfig{Port: 8080},
		Auth:       AuthConfig{JWTSecret: "test-secret-key-for-unit-testing"},
		Enrollment: EnrollmentConfig{NotifyQueue: "notify:emails"},
	}
}

func TestValidate_OK(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("期望校验通过，实际: %v", err)
	}
}

func TestValidate_ShortSecret(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "short"
	if err := cfg.Validate(); err == nil {
		t.Fatal("期望 jwt_secret 过短时校验失败")
	}
}

func TestValidate_BadPort(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("期望端口越界时校验失败")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PLANNAT_AUTH_JWT_SECRET", "env-secret-key-0123456789")
	t.Setenv("PLANNAT_ENROLLMENT_WAITING_COUNTS_TOWARD_QUOTA", "true")
	t.Setenv("PLANNAT_SERVER_PORT", "9090")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load 应成功: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("期望 Port=9090，实际=%d", cfg.Server.Port)
	}
	if !cfg.Enrollment.WaitingCountsTowardQuota {
		t.Error("期望 waiting_counts_toward_quota=true")
	}
	if cfg.Enrollment.NotifyTimeout != 3*time.Second {
		t.Errorf("期望 NotifyTimeout=3s，实际=%s", cfg.Enrollment.NotifyTimeout)
	}
}

func TestDSN_StatementTimeout(t *testing.T) {
	c := &DatabaseConfig{Host: "h", Port: 5432, User: "u", Name: "n", SSLMode: "disable", Timezone: "UTC", StatementTimeout: 2 * time.Second}
	want := "host=h port=5432 user=u password= dbname=n sslmode=disable TimeZone=UTC statement_timeout=2000"
	if got := c.DSN(); got != want {
		t.Errorf("DSN 不符:\n期望 %s\n实际 %s", want, got)
	}
}
