package ami

import (
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	c := NewCodec(DefaultSeparators())

	got := string(c.Encode("Login",
		Arg{Key: "Username", Value: "admin"},
		Arg{Key: "Secret", Value: "s3cr3t"},
		Arg{Key: "Events", Value: "on"},
	))

	want := "Action: Login\r\nUsername: admin\r\nSecret: s3cr3t\r\nEvents: on\r\n\r\n"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestEncodeNoArgs(t *testing.T) {
	c := NewCodec(DefaultSeparators())
	if got := string(c.Encode("Ping")); got != "Action: Ping\r\n\r\n" {
		t.Errorf("unexpected ping block %q", got)
	}
}

func TestDecode(t *testing.T) {
	c := NewCodec(DefaultSeparators())

	e := c.Decode("Event: Newchannel\r\nChannel: SIP/100-0001\r\nAppData: a: b\r\ngarbage line\r\nCHANNEL: dup")

	if e.Name() != "Newchannel" {
		t.Errorf("expected Newchannel, got %s", e.Name())
	}
	if e.Value("channel") != "SIP/100-0001" {
		t.Errorf("expected first channel value, got %s", e.Value("channel"))
	}
	if e.Value("appdata") != "a: b" {
		t.Errorf("expected split on first separator only, got %q", e.Value("appdata"))
	}
	if e.Len() != 3 {
		t.Errorf("expected 3 properties, got %d (%v)", e.Len(), e.Keys())
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	dialects := []Separators{
		DefaultSeparators(),
		{Command: "||", Line: ";", Property: "="},
	}

	for _, sep := range dialects {
		c := NewCodec(sep)
		block := strings.TrimSuffix(string(c.Encode("QueueStatus",
			Arg{Key: "Queue", Value: "sales"},
			Arg{Key: "Member", Value: "SIP/100"},
		)), sep.Command)

		e := c.Decode(block)
		want := map[string]string{"action": "QueueStatus", "queue": "sales", "member": "SIP/100"}
		if e.Len() != len(want) {
			t.Fatalf("expected %d keys, got %d", len(want), e.Len())
		}
		for k, v := range want {
			if e.Value(k) != v {
				t.Errorf("key %s: expected %q, got %q", k, v, e.Value(k))
			}
		}
	}
}

func TestSplitCarriesPartialBlock(t *testing.T) {
	c := NewCodec(DefaultSeparators())

	blocks, rest := c.Split("", "Event: A\r\nX: 1\r\n\r\nEvent: B\r\nX:")
	if len(blocks) != 1 || blocks[0] != "Event: A\r\nX: 1" {
		t.Fatalf("unexpected blocks %q", blocks)
	}
	if rest != "Event: B\r\nX:" {
		t.Fatalf("unexpected rest %q", rest)
	}

	blocks, rest = c.Split(rest, " 2\r\n\r")
	if len(blocks) != 0 {
		t.Fatalf("expected no complete block, got %q", blocks)
	}

	blocks, rest = c.Split(rest, "\n")
	if len(blocks) != 1 || c.Decode(blocks[0]).Value("x") != "2" {
		t.Fatalf("unexpected blocks %q", blocks)
	}
	if rest != "" {
		t.Errorf("expected empty rest, got %q", rest)
	}
}
