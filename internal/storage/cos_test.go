package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spgemm-symbolic/pkg/config"
	"github.com/spgemm-symbolic/pkg/errors"
)

func TestNewCOSStorage_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     COSConfig
		wantErr string
	}{
		{"missing bucket", COSConfig{Region: "ap-guangzhou", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"missing region", COSConfig{Bucket: "b", SecretID: "id", SecretKey: "key"}, "bucket and region are required"},
		{"missing credentials", COSConfig{Bucket: "b", Region: "ap-guangzhou"}, "credentials are required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewCOSStorage(&tt.cfg)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, errors.CodeConfigError, errors.GetErrorCode(err))
		})
	}
}

func TestCOSStorage_URL(t *testing.T) {
	s, err := NewCOSStorage(&COSConfig{
		Bucket:    "reports-1250000000",
		Region:    "ap-guangzhou",
		SecretID:  "id",
		SecretKey: "key",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://reports-1250000000.cos.ap-guangzhou.myqcloud.com/runs/r1/report.json",
		s.URL(ReportKey("r1", "report.json")))

	s, err = NewCOSStorage(&COSConfig{
		Bucket:    "b",
		Region:    "ap-shanghai",
		SecretID:  "id",
		SecretKey: "key",
		Domain:    "tencentcos.cn",
		Scheme:    "http",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://b.cos.ap-shanghai.tencentcos.cn/k", s.URL("k"))
}

func TestValidate(t *testing.T) {
	cos := func(mod func(c *config.StorageConfig)) *config.StorageConfig {
		c := &config.StorageConfig{Type: "cos", Bucket: "b", Region: "ap-guangzhou", SecretID: "id", SecretKey: "key"}
		mod(c)
		return c
	}

	tests := []struct {
		name    string
		cfg     *config.StorageConfig
		wantErr string
	}{
		{"nil", nil, "storage config is nil"},
		{"unknown type", &config.StorageConfig{Type: "s3"}, "unsupported storage type"},
		{"cos without bucket", cos(func(c *config.StorageConfig) { c.Bucket = "" }), "COS bucket is required"},
		{"cos without region", cos(func(c *config.StorageConfig) { c.Region = "" }), "COS region is required"},
		{"cos without secret", cos(func(c *config.StorageConfig) { c.SecretKey = "" }), "COS credentials are required"},
		{"local without path", &config.StorageConfig{Type: "local"}, "local storage path is required"},
		{"valid cos", cos(func(*config.StorageConfig) {}), ""},
		{"valid local", &config.StorageConfig{Type: "local", LocalPath: "/tmp/storage"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cfg)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_COS(t *testing.T) {
	s, err := New(&config.StorageConfig{
		Type:      "cos",
		Bucket:    "b",
		Region:    "ap-guangzhou",
		SecretID:  "id",
		SecretKey: "key",
	})
	require.NoError(t, err)
	_, ok := s.(*COSStorage)
	assert.True(t, ok)
}
