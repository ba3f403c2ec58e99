package auth

import (
	"strings"

	"github.com/xdg-go/scram"
	"github.com/xdg-go/stringprep"

	"github.com/ha1tch/pgwire/pgerr"
)

// PasswordPreparer turns a raw password into the string fed to the SCRAM
// client. The default SASLprep's a UTF-8 password and falls back to the
// raw bytes (reinterpreted as Latin-1-ish string) when SASLprep itself
// rejects the input — matching Postgres's own tolerance for passwords that
// were never SASLprep-clean to begin with (SPEC_FULL.md §9; grounded on
// original_source/pagio/pgscramp.py's _FakePassword monkey-patch, done here
// via straightforward dependency injection instead).
type PasswordPreparer func(password []byte) (prepared string, usedRaw bool)

// DefaultPreparer is SASLprep with fallback to the raw bytes.
func DefaultPreparer(password []byte) (string, bool) {
	prepared, err := stringprep.SASLprep.Prepare(string(password))
	if err != nil {
		return string(password), true
	}
	return prepared, false
}

// ScramClient drives one SCRAM-SHA-256 (optionally -PLUS, with channel
// binding) authentication dialogue against a Postgres server, on top of
// github.com/xdg-go/scram. Postgres ignores the SASL username entirely (it
// was already sent in the Startup message), so "user" is used as a
// constant placeholder per the RFC and per the original implementation.
type ScramClient struct {
	mechanism string
	preparer  PasswordPreparer
	password  []byte
	cbName    string
	cbData    []byte

	client *scram.Client
	conv   *scram.ClientConversation
	usedRaw bool
}

const scramSASLUser = "user"

// NewScramClient selects a mechanism from the server's advertised list
// (preferring the channel-binding variant when channel-binding data is
// available) and prepares the initial client conversation.
func NewScramClient(mechanisms []string, password []byte, preparer PasswordPreparer, cbName string, cbData []byte) (*ScramClient, error) {
	if preparer == nil {
		preparer = DefaultPreparer
	}
	mech, err := chooseMechanism(mechanisms, len(cbData) > 0)
	if err != nil {
		return nil, err
	}
	c := &ScramClient{
		mechanism: mech,
		preparer:  preparer,
		password:  password,
		cbName:    cbName,
		cbData:    cbData,
	}
	if err := c.newConversation(false); err != nil {
		return nil, err
	}
	return c, nil
}

func chooseMechanism(mechanisms []string, haveChannelBinding bool) (string, error) {
	hasPlus, hasPlain := false, false
	for _, m := range mechanisms {
		switch m {
		case "SCRAM-SHA-256-PLUS":
			hasPlus = true
		case "SCRAM-SHA-256":
			hasPlain = true
		}
	}
	if haveChannelBinding && hasPlus {
		return "SCRAM-SHA-256-PLUS", nil
	}
	if hasPlain {
		return "SCRAM-SHA-256", nil
	}
	if hasPlus {
		return "SCRAM-SHA-256-PLUS", nil
	}
	return "", pgerr.InvalidOperation("no supported SASL mechanism offered: %v", mechanisms)
}

func (c *ScramClient) newConversation(forceRaw bool) error {
	prepared, usedRaw := c.password, true
	var pwStr string
	if forceRaw {
		pwStr = string(prepared)
	} else {
		pwStr, usedRaw = c.preparer(c.password)
	}
	c.usedRaw = usedRaw

	client, err := scram.SHA256.NewClient(scramSASLUser, pwStr, "")
	if err != nil {
		return pgerr.Wrap(err, pgerr.CategoryProgrammingError, "scram client init")
	}
	c.client = client

	if c.mechanism == "SCRAM-SHA-256-PLUS" && len(c.cbData) > 0 {
		c.conv = client.NewConversationWithChannelBinding(c.cbName, c.cbData)
	} else {
		c.conv = client.NewConversation()
	}
	return nil
}

// Mechanism reports the chosen SASL mechanism name for the SASLInitialResponse.
func (c *ScramClient) Mechanism() string { return c.mechanism }

// ClientFirst returns the client-first-message bytes to send as the
// SASLInitialResponse payload.
func (c *ScramClient) ClientFirst() ([]byte, error) {
	resp, err := c.conv.Step("")
	if err != nil {
		return nil, pgerr.Wrap(err, pgerr.CategoryProtocolError, "scram client-first")
	}
	return []byte(resp), nil
}

// Step feeds the server's message (server-first or server-final) to the
// conversation and returns the next client message, if any. restarted
// reports that the conversation was reset to use the raw, un-SASLprep'd
// password after the server rejected the prepared one with
// "invalid-encoding" — the caller must treat resp as a fresh client-first
// message and replay the SASL dialogue from the top, per SPEC_FULL.md §9.
func (c *ScramClient) Step(serverMessage []byte) (resp []byte, restarted bool, err error) {
	out, stepErr := c.conv.Step(string(serverMessage))
	if stepErr != nil {
		if isInvalidEncoding(stepErr) && !c.usedRaw {
			if rerr := c.newConversation(true); rerr != nil {
				return nil, false, rerr
			}
			first, ferr := c.ClientFirst()
			if ferr != nil {
				return nil, false, ferr
			}
			return first, true, nil
		}
		return nil, false, pgerr.Wrap(stepErr, pgerr.CategoryProtocolError, "scram step")
	}
	return []byte(out), false, nil
}

// Done reports whether the conversation has produced its final message.
func (c *ScramClient) Done() bool { return c.conv.Done() }

// Valid reports whether the server's final message verified correctly
// (i.e. the server proved it knows the salted password too).
func (c *ScramClient) Valid() bool { return c.conv.Valid() }

func isInvalidEncoding(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "invalid-encoding") || strings.Contains(msg, "invalid encoding")
}
