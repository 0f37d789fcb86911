package sa

import "testing"

func TestBlobKeyShardsByHashPrefix(t *testing.T) {
	key := blobKey("abcdef0123456789")
	want := "uploads/ab/abcdef0123456789"
	if key != want {
		t.Fatalf("expected %s, got %s", want, key)
	}
}

func TestBlobKeyDistinctHashesDistinctKeys(t *testing.T) {
	a := blobKey("aaaa1111")
	b := blobKey("bbbb2222")
	if a == b {
		t.Fatal("expected distinct content hashes to produce distinct keys")
	}
}
