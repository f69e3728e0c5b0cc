package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRecipientsTrimsAndDropsEmpty(t *testing.T) {
	got := ParseRecipients(" a@x.com ,, b@y.com,")
	assert.Equal(t, []string{"a@x.com", "b@y.com"}, got)
}

func TestParseRecipientsEmptyString(t *testing.T) {
	got := ParseRecipients("")
	assert.Empty(t, got)
}

func TestBuildMessageIncludesHeaders(t *testing.T) {
	msg := buildMessage("from@x.com", []string{"to@y.com"}, "subj", "body text")
	assert.Contains(t, msg, "Subject: subj")
	assert.Contains(t, msg, "To: to@y.com")
	assert.Contains(t, msg, "body text")
}
