package model

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEnumValidators(t *testing.T) {
	tests := []struct {
		name  string
		fn    func(string) bool
		valid []string
		bad   []string
	}{
		{"client status", ValidClientStatus,
			[]string{"active", "inactive", "suspended", "pending_verification"},
			[]string{"", "deleted", "Active"}},
		{"client plan", ValidClientPlan,
			[]string{"free", "basic", "premium", "enterprise"},
			[]string{"", "gold"}},
		{"credential platform", ValidCredentialPlatform,
			[]string{"account", "linkedin", "twitter", "email", "facebook", "instagram"},
			[]string{"", "myspace"}},
		{"automation type", ValidAutomationType,
			[]string{"enrichment", "outreach", "scraping"},
			[]string{"", "spam"}},
		{"campaign status", ValidCampaignStatus,
			[]string{"draft", "active", "paused", "completed", "failed"},
			[]string{"", "archived"}},
		{"file category", ValidFileCategory,
			[]string{"document", "template", "report", "instruction", "data", "other"},
			[]string{"", "misc"}},
		{"log type", ValidLogType,
			[]string{"info", "success", "warning", "error"},
			[]string{"", "verification", "debug"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, v := range tt.valid {
				assert.True(t, tt.fn(v), v)
			}
			for _, v := range tt.bad {
				assert.False(t, tt.fn(v), v)
			}
		})
	}
}

func TestLooksHashed(t *testing.T) {
	assert.True(t, LooksHashed("$2a$12$abc"))
	assert.True(t, LooksHashed("$2b$12$abc"))
	assert.True(t, LooksHashed("$2y$10$abc"))
	assert.False(t, LooksHashed("plaintext"))
	assert.False(t, LooksHashed(""))
	assert.False(t, LooksHashed("$1$md5crypt"))
}

var clientIDRe = regexp.MustCompile(`^CLT-\d{13}-[A-Z0-9]{6}$`)

func TestNewClientID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewClientID()
		assert.Regexp(t, clientIDRe, id)
		seen[id] = true
	}
	// 随机后缀基本不该碰撞
	assert.Greater(t, len(seen), 90)
}

func TestSubdocumentIDs(t *testing.T) {
	assert.Regexp(t, `^file-[0-9a-f]{16}$`, NewFileID())
	assert.Regexp(t, `^cmp-[0-9a-f]{16}$`, NewCampaignID())
	assert.Regexp(t, `^clt-\d+$`, NewInternalID("clt"))
}

func testClient() *Client {
	return &Client{
		ID:       "clt-1",
		ClientID: "CLT-1700000000000-ABCDEF",
		Name:     "Acme Corp",
		Email:    "ops@acme.test",
		Status:   ClientStatusActive,
		Plan:     PlanFree,
		Credentials: []Credential{
			{Platform: PlatformAccount, Username: "ops@acme.test", Password: "$2b$12$hash"},
			{Platform: PlatformLinkedIn, Username: "acme", Password: "plaintext-by-design"},
		},
		UploadedFiles: []UploadedFile{
			{ID: "file-aa", FileName: "CLT-1/leads.csv", OriginalName: "leads.csv"},
		},
	}
}

func TestAccountCredential(t *testing.T) {
	c := testClient()
	cred := c.AccountCredential()
	assert.NotNil(t, cred)
	assert.Equal(t, PlatformAccount, cred.Platform)

	c.Credentials = c.Credentials[1:]
	assert.Nil(t, c.AccountCredential())
}

func TestFileByID(t *testing.T) {
	c := testClient()
	assert.NotNil(t, c.FileByID("file-aa"))
	assert.Nil(t, c.FileByID("file-bb"))
}

func TestRedacted(t *testing.T) {
	c := testClient()
	r := c.Redacted()

	// account 密码抹掉，自动化凭据保留
	assert.Empty(t, r.Credentials[0].Password)
	assert.Equal(t, "plaintext-by-design", r.Credentials[1].Password)

	// 原文档不受影响
	assert.Equal(t, "$2b$12$hash", c.Credentials[0].Password)
}

func TestAdminLocked(t *testing.T) {
	now := time.Now()
	a := &Admin{}
	assert.False(t, a.Locked(now))

	until := now.Add(time.Hour)
	a.LockUntil = &until
	assert.True(t, a.Locked(now))
	assert.False(t, a.Locked(now.Add(2*time.Hour)))
}
