package slackconn

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// fakeSlack serves canned Web API responses keyed by method name.
func fakeSlack(t *testing.T, responses map[string]string) (*Client, *httptest.Server, map[string]*atomic.Int32) {
	t.Helper()
	calls := make(map[string]*atomic.Int32)
	for m := range responses {
		calls[m] = &atomic.Int32{}
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimPrefix(r.URL.Path, "/")
		body, ok := responses[method]
		if !ok {
			t.Errorf("unexpected slack call %s", method)
			w.Write([]byte(`{"ok": false, "error": "unknown_method"}`))
			return
		}
		calls[method].Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return NewClient(NewAPI("xoxb-test", "", srv.URL), nil), srv, calls
}

func TestFetchThread(t *testing.T) {
	c, _, calls := fakeSlack(t, map[string]string{
		"conversations.replies": `{"ok": true, "has_more": false, "messages": [
			{"user": "U1", "text": "Checkout fails, see <https://status.example.com|status>", "ts": "1.1",
			 "files": [{"name": "trace.log", "url_private": "https://files.slack.com/trace.log", "mode": "hosted", "mimetype": "text/plain", "size": 42}]},
			{"user": "U2", "text": "Same here <https://status.example.com>", "ts": "1.2"},
			{"user": "U1", "text": "Retrying now", "ts": "1.3"},
			{"username": "deploybot", "text": "deployed v2", "ts": "1.4"}
		]}`,
		"users.info": `{"ok": true, "user": {"id": "U1", "real_name": "Ana Lima"}}`,
	})

	thread, err := c.FetchThread(context.Background(), "C1", "1.1")
	if err != nil {
		t.Fatalf("FetchThread: %v", err)
	}

	want := strings.Join([]string{
		"@Ana Lima: Checkout fails, see <https://status.example.com|status>",
		"@Ana Lima: Same here <https://status.example.com>",
		"@Ana Lima: Retrying now",
		"@deploybot: deployed v2",
	}, "\n")
	if thread.Conversation != want {
		t.Errorf("conversation:\n%s\nwant:\n%s", thread.Conversation, want)
	}
	if thread.MessageCount != 4 {
		t.Errorf("message count = %d", thread.MessageCount)
	}
	if len(thread.Files) != 1 || thread.Files[0].URL != "https://files.slack.com/trace.log" || thread.Files[0].Size != 42 {
		t.Errorf("files = %+v", thread.Files)
	}
	if len(thread.Links) != 1 || thread.Links[0] != "https://status.example.com" {
		t.Errorf("links = %v", thread.Links)
	}
	// U1 and U2 are looked up once each.
	if n := calls["users.info"].Load(); n != 2 {
		t.Errorf("users.info calls = %d, want 2", n)
	}
}

func TestFetchThread_UnknownUser(t *testing.T) {
	c, _, _ := fakeSlack(t, map[string]string{
		"conversations.replies": `{"ok": true, "messages": [{"user": "U9", "text": "hi", "ts": "1.1"}]}`,
		"users.info":            `{"ok": false, "error": "user_not_found"}`,
	})

	thread, err := c.FetchThread(context.Background(), "C1", "1.1")
	if err != nil {
		t.Fatalf("FetchThread: %v", err)
	}
	if thread.Conversation != "@Unknown: hi" {
		t.Errorf("conversation = %q", thread.Conversation)
	}
}

func TestFetchThread_Error(t *testing.T) {
	c, _, _ := fakeSlack(t, map[string]string{
		"conversations.replies": `{"ok": false, "error": "channel_not_found"}`,
	})
	if _, err := c.FetchThread(context.Background(), "C1", "1.1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestChannelNameAndPermalink(t *testing.T) {
	c, _, _ := fakeSlack(t, map[string]string{
		"conversations.info": `{"ok": true, "channel": {"id": "C1", "name": "support"}}`,
		"chat.getPermalink":  `{"ok": true, "channel": "C1", "permalink": "https://acme.slack.com/archives/C1/p11"}`,
	})

	name, err := c.ChannelName(context.Background(), "C1")
	if err != nil || name != "support" {
		t.Errorf("ChannelName = %q, %v", name, err)
	}
	link, err := c.Permalink(context.Background(), "C1", "1.1")
	if err != nil || link != "https://acme.slack.com/archives/C1/p11" {
		t.Errorf("Permalink = %q, %v", link, err)
	}
}

func TestPostAndUpdateMessage(t *testing.T) {
	c, _, calls := fakeSlack(t, map[string]string{
		"chat.postMessage": `{"ok": true, "channel": "D1", "ts": "2.2"}`,
		"chat.update":      `{"ok": true, "channel": "D1", "ts": "2.2", "text": "updated"}`,
	})

	ch, ts, err := c.PostMessage(context.Background(), "U1", "hello", nil)
	if err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if ch != "D1" || ts != "2.2" {
		t.Errorf("posted to %s/%s", ch, ts)
	}
	if err := c.UpdateMessage(context.Background(), ch, ts, "updated", nil); err != nil {
		t.Fatalf("UpdateMessage: %v", err)
	}
	if calls["chat.update"].Load() != 1 {
		t.Error("chat.update not called")
	}
}

func TestRemoveReaction_IgnoresErrors(t *testing.T) {
	c, _, calls := fakeSlack(t, map[string]string{
		"reactions.remove": `{"ok": false, "error": "no_reaction"}`,
	})
	c.RemoveReaction(context.Background(), "C1", "1.1", "hourglass_flowing_sand")
	if calls["reactions.remove"].Load() != 1 {
		t.Error("reactions.remove not called")
	}
}

func TestDownloadFile(t *testing.T) {
	files := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer xoxb-test" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte("file-bytes"))
	}))
	defer files.Close()

	c, _, _ := fakeSlack(t, map[string]string{})
	var buf bytes.Buffer
	if err := c.DownloadFile(context.Background(), files.URL+"/trace.log", &buf); err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if buf.String() != "file-bytes" {
		t.Errorf("content = %q", buf.String())
	}
}
