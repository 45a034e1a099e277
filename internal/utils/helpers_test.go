package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := []struct{ in, want string }{
		{"lease.pdf", "lease.pdf"},
		{"My Lease (final).pdf", "My_Lease_final.pdf"},
		{"../../etc/passwd", "etc_passwd"},
		{`C:\docs\Rent Roll.PDF`, "C_docs_Rent_Roll.PDF"},
		{"Café Portfolio 2024.pdf", "Caf_Portfolio_2024.pdf"},
		{"  .hidden.pdf ", "hidden.pdf"},
		{"日本語", ""},
		{"Portfolio\tA\nB.pdf", "Portfolio_A_B.pdf"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, SanitizeFilename(c.in), c.in)
	}
}

func TestStoredNameShort(t *testing.T) {
	assert.Equal(t, "abc_My_Lease.pdf", StoredName("abc", "My Lease.pdf", 128))
	assert.Equal(t, "abc", StoredName("abc", "日本語", 128))
}

func TestStoredNameKeepsExtensionWhenTruncated(t *testing.T) {
	id := "0b7e3f6a-3d4c-4f9b-9b1e-2a6c5d8e9f10"
	long := strings.Repeat("offering_memorandum_", 10) + ".pdf"

	got := StoredName(id, long, 128)
	assert.Len(t, got, 128)
	assert.True(t, strings.HasPrefix(got, id+"_"))
	assert.True(t, strings.HasSuffix(got, ".pdf"))
}
