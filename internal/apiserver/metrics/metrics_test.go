package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/admin/clients", "/admin/clients"},
		{"/admin/clients/CLT-1700000000000-AB12CD", "/admin/clients/{clientId}"},
		{"/admin/clients/CLT-1700000000000-AB12CD/status", "/admin/clients/{clientId}/status"},
		{"/client/CLT-1-ABCDEF/files/file-0123456789abcdef/download", "/client/{clientId}/files/{fileId}/download"},
		{"/client/CLT-1-ABCDEF/campaigns/cmp-0011223344556677", "/client/{clientId}/campaigns/{campaignId}"},
		{"/auth/reset-password/9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", "/auth/reset-password/{token}"},
		{"/health", "/health"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}
