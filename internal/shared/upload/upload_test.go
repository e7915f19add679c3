package upload

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckFile(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		mimeType string
		size     int64
		wantErr  error
	}{
		{"csv ok", "leads.csv", "text/csv", 1024, nil},
		{"png ok", "logo.png", "image/png", 1024, nil},
		{"jpeg both extensions", "photo.jpeg", "image/jpeg", 1024, nil},
		{"xlsx ok", "report.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", 1024, nil},
		{"mime case insensitive", "data.json", "Application/JSON", 1024, nil},
		{"too large", "big.csv", "text/csv", MaxFileSize + 1, ErrFileTooLarge},
		{"at limit ok", "edge.csv", "text/csv", MaxFileSize, nil},
		{"executable blocked", "tool.exe", "application/x-msdownload", 1024, ErrTypeNotAllowed},
		{"mime ext mismatch", "script.exe", "text/csv", 1024, ErrTypeNotAllowed},
		{"html blocked", "page.html", "text/html", 1024, ErrTypeNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckFile(tt.fileName, tt.mimeType, tt.size)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestCheckCount(t *testing.T) {
	assert.NoError(t, CheckCount(1))
	assert.NoError(t, CheckCount(MaxFiles))
	assert.ErrorIs(t, CheckCount(MaxFiles+1), ErrTooManyFiles)
}

func TestScanContent(t *testing.T) {
	assert.NoError(t, ScanContent([]byte("name,email\nalice,a@example.com\n")))

	bad := []string{
		"<SCRIPT>alert(1)</script>",
		"click javascript:alert(1)",
		"x onerror=steal()",
		"data eval(payload)",
	}
	for _, content := range bad {
		assert.ErrorIs(t, ScanContent([]byte(content)), ErrMaliciousContent, content)
	}
}

func TestNeedsScan(t *testing.T) {
	assert.True(t, NeedsScan("text/csv"))
	assert.True(t, NeedsScan("application/json"))
	assert.False(t, NeedsScan("image/png"))
	assert.False(t, NeedsScan("application/pdf"))
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "my_leads_v2", SanitizeName("my leads v2.csv"))
	assert.Equal(t, "report", SanitizeName("../../report.pdf"))
	assert.Equal(t, "file", SanitizeName("???.txt"))
	assert.Equal(t, "file", SanitizeName("----.csv"))
	assert.Equal(t, "file", SanitizeName(".txt"))
	assert.LessOrEqual(t, len(SanitizeName(strings.Repeat("a", 200)+".csv")), 80)
}

func TestStorageKey(t *testing.T) {
	key := StorageKey("CLT-123-ABCDEF", "my leads.csv")
	assert.Regexp(t, regexp.MustCompile(`^CLT-123-ABCDEF/my_leads-\d+-[0-9a-f]{6}\.csv$`), key)

	// 同名文件生成不同的键
	assert.NotEqual(t, StorageKey("CLT-1-A", "x.csv"), StorageKey("CLT-1-A", "x.csv"))
}
