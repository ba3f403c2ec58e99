package auth

import "testing"

func TestMD5PasswordKnownVector(t *testing.T) {
	got := MD5Password("alice", "s3cret", [4]byte{0x01, 0x02, 0x03, 0x04})
	want := "md5b79948bbeb35dee03ab8fe15a839030b"
	if got != want {
		t.Errorf("MD5Password() = %q, want %q", got, want)
	}
}

func TestMD5PasswordVariesWithSalt(t *testing.T) {
	a := MD5Password("alice", "s3cret", [4]byte{0, 0, 0, 0})
	b := MD5Password("alice", "s3cret", [4]byte{1, 0, 0, 0})
	if a == b {
		t.Errorf("MD5Password produced the same hash for two different salts")
	}
}

func TestMD5PasswordVariesWithUser(t *testing.T) {
	a := MD5Password("alice", "s3cret", [4]byte{1, 2, 3, 4})
	b := MD5Password("bob", "s3cret", [4]byte{1, 2, 3, 4})
	if a == b {
		t.Errorf("MD5Password produced the same hash for two different users")
	}
}

func TestMD5PasswordHasPrefix(t *testing.T) {
	got := MD5Password("u", "p", [4]byte{})
	if len(got) != 35 || got[:3] != "md5" {
		t.Errorf("MD5Password() = %q, want a 35-char string starting with \"md5\"", got)
	}
}
