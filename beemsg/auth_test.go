package beemsg

import "testing"

func TestCheckAuthHash_AcceptsMatchingSecret(t *testing.T) {
	want := authHash("s3cr3t")
	if !checkAuthHash(want, "s3cr3t") {
		t.Fatal("expected matching secret to authenticate")
	}
}

func TestCheckAuthHash_RejectsWrongSecret(t *testing.T) {
	want := authHash("s3cr3t")
	if checkAuthHash(want, "wrong") {
		t.Fatal("expected mismatched secret to fail authentication")
	}
}
