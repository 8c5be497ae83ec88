package chat

import "testing"

func TestMessageText(t *testing.T) {
	msg := Message{Content: []Content{
		{Type: ContentTypeText, Text: "show me "},
		{Type: ContentTypeText, Text: "recent whales"},
		{Type: ContentTypeEndSession},
	}}
	if msg.Text() != "show me recent whales" {
		t.Errorf("Expected concatenated text chunks, got %q", msg.Text())
	}
}

func TestNewTextMessage(t *testing.T) {
	msg := NewTextMessage("hello", true)
	if msg.MsgID == "" {
		t.Error("Expected a generated message ID")
	}
	if len(msg.Content) != 2 {
		t.Fatalf("Expected text plus end-session chunks, got %d", len(msg.Content))
	}
	if msg.Content[0].Type != ContentTypeText || msg.Content[0].Text != "hello" {
		t.Errorf("Expected a text chunk first, got %+v", msg.Content[0])
	}
	if msg.Content[1].Type != ContentTypeEndSession {
		t.Errorf("Expected an end-session chunk, got %+v", msg.Content[1])
	}

	plain := NewTextMessage("hi", false)
	if len(plain.Content) != 1 {
		t.Errorf("Expected a single chunk without end-session, got %d", len(plain.Content))
	}
}

func TestValidate(t *testing.T) {
	if err := (WhaleQueryRequest{}).Validate(); err == nil {
		t.Error("Expected an empty query to be rejected")
	}
	if err := (WhaleQueryRequest{Query: "whales?"}).Validate(); err != nil {
		t.Errorf("Expected a non-empty query to pass, got %v", err)
	}

	if err := (WalletEnrichmentRequest{WalletAddress: "nope"}).Validate(); err == nil {
		t.Error("Expected a malformed address to be rejected")
	}
	if err := (WalletEnrichmentRequest{WalletAddress: "0x2Df1c51E09aECF9cacB7bc98cB1742757f163dF7"}).Validate(); err != nil {
		t.Errorf("Expected a valid address to pass, got %v", err)
	}
}
