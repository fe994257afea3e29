package google

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

func TestGetReturnsValidCachedTokenWithoutRefresh(t *testing.T) {
	dir := t.TempDir()
	ts := New("client-id", "client-secret", dir, logrus.NewEntry(logrus.New()))

	ts.persist(&oauth2.Token{
		AccessToken: "cached-access-token",
		Expiry:      time.Now().Add(time.Hour),
	})

	token, err := ts.Get(context.Background(), false)
	if err != nil {
		t.Fatalf("Get: unexpected error: %v", err)
	}
	if token != "cached-access-token" {
		t.Fatalf("got %q, want cached-access-token", token)
	}
}

func TestLoadCachedReadsPersistedFile(t *testing.T) {
	dir := t.TempDir()
	ts := New("client-id", "client-secret", dir, logrus.NewEntry(logrus.New()))
	ts.persist(&oauth2.Token{AccessToken: "tok-1", Expiry: time.Now().Add(time.Hour)})

	// Force a fresh TokenSource (simulating a new process) to read from disk.
	ts2 := New("client-id", "client-secret", dir, logrus.NewEntry(logrus.New()))
	tok := ts2.loadCached()
	if tok == nil || tok.AccessToken != "tok-1" {
		t.Fatalf("loadCached: got %+v, want access token tok-1", tok)
	}
}

func TestLoadCachedMissingFileReturnsNil(t *testing.T) {
	ts := New("client-id", "client-secret", t.TempDir(), logrus.NewEntry(logrus.New()))
	if tok := ts.loadCached(); tok != nil {
		t.Fatalf("expected nil for missing token file, got %+v", tok)
	}
}

func TestValidReflectsCachedTokenExpiry(t *testing.T) {
	dir := t.TempDir()
	ts := New("client-id", "client-secret", dir, logrus.NewEntry(logrus.New()))
	if ts.Valid() {
		t.Fatal("expected Valid() to be false with no cached token")
	}

	ts.persist(&oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(time.Hour)})
	if !ts.Valid() {
		t.Fatal("expected Valid() to be true for an unexpired cached token")
	}

	ts.persist(&oauth2.Token{AccessToken: "tok", Expiry: time.Now().Add(-time.Hour)})
	if ts.Valid() {
		t.Fatal("expected Valid() to be false for an expired cached token")
	}
}
