package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRepairReportKey(t *testing.T) {
	assert.Equal(t, "reports/repair/1234.json", RepairReportKey("1234"))
	assert.Equal(t, "reports/repair/evil.json", RepairReportKey("../../evil"))
}

func TestPresignExpire_Default(t *testing.T) {
	s := &S3{cfg: S3Config{}}
	assert.Equal(t, "15m0s", s.PresignExpire().String())
	s.cfg.PresignExpireMinutes = 5
	assert.Equal(t, "5m0s", s.PresignExpire().String())
}
