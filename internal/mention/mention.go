// Package mention rewrites Chatwoot "@name" references into WhatsApp's native
// "@<number>" mentions.
package mention

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/matheus3301/wpp-bridge/internal/wa"
	"go.mau.fi/whatsmeow/types"
)

var tokenPattern = regexp.MustCompile(`@("[^@"']+"|'[^@"']+'|[^@\s"']+)`)

// Token is one @reference found in a message body.
type Token struct {
	Raw   string
	Key   string
	Start int
	End   int
}

// Result is a translated body and the participants it mentions, in order.
type Result struct {
	Body     string
	Mentions []types.JID
}

// ParseTokens returns every @reference in body in order of appearance.
func ParseTokens(body string) []Token {
	locs := tokenPattern.FindAllStringIndex(body, -1)
	tokens := make([]Token, 0, len(locs))
	for _, loc := range locs {
		raw := body[loc[0]:loc[1]]
		tokens = append(tokens, Token{Raw: raw, Key: Normalize(raw), Start: loc[0], End: loc[1]})
	}
	return tokens
}

var keyStripper = strings.NewReplacer(`"`, "", "'", "", "+", "")

// Normalize turns a raw token into its lookup key: leading @, quotes and plus
// signs removed, lowercased.
func Normalize(raw string) string {
	return strings.ToLower(keyStripper.Replace(strings.TrimPrefix(raw, "@")))
}

// Matches reports whether key identifies participant p. Empty keys match nothing.
func Matches(key string, p wa.Contact) bool {
	if key == "" {
		return false
	}
	for _, field := range []string{p.Name, p.PushName, p.Number()} {
		if field != "" && strings.Contains(strings.ToLower(field), key) {
			return true
		}
	}
	return false
}

// Translate rewrites each token that matches a participant to "@<number>".
// The first matching participant wins. Unmatched tokens are left verbatim.
func Translate(body string, participants []wa.Contact) Result {
	tokens := ParseTokens(body)
	if len(tokens) == 0 {
		return Result{Body: body}
	}

	var b strings.Builder
	var mentions []types.JID
	seen := make(map[types.JID]bool)
	last := 0
	for _, tok := range tokens {
		p, ok := find(tok.Key, participants)
		if !ok {
			continue
		}
		b.WriteString(body[last:tok.Start])
		b.WriteString("@" + p.Number())
		last = tok.End
		if !seen[p.JID] {
			seen[p.JID] = true
			mentions = append(mentions, p.JID)
		}
	}
	b.WriteString(body[last:])
	return Result{Body: b.String(), Mentions: mentions}
}

func find(key string, participants []wa.Contact) (wa.Contact, bool) {
	for _, p := range participants {
		if Matches(key, p) {
			return p, true
		}
	}
	return wa.Contact{}, false
}

// Roster lists the members of a group chat.
type Roster interface {
	GroupParticipants(ctx context.Context, group types.JID) ([]wa.Contact, error)
}

// Translator resolves mentions against the live participant list of a chat.
type Translator struct {
	roster Roster
}

// NewTranslator creates a translator backed by roster.
func NewTranslator(roster Roster) *Translator {
	return &Translator{roster: roster}
}

// Translate rewrites mentions in body for chat. Only groups have a roster;
// other chats and bodies without tokens are returned unchanged without a lookup.
func (t *Translator) Translate(ctx context.Context, chat types.JID, body string) (Result, error) {
	if chat.Server != types.GroupServer || !tokenPattern.MatchString(body) {
		return Result{Body: body}, nil
	}
	participants, err := t.roster.GroupParticipants(ctx, chat)
	if err != nil {
		return Result{}, fmt.Errorf("load participants of %s: %w", chat, err)
	}
	return Translate(body, participants), nil
}
