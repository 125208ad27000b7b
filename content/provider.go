package content

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"strings"
	"sync"

	"github.com/mapleleafu/typerace/protocol"
)

var ErrNoParagraph = errors.New("content: no paragraph available")

// Provider hands out the text of the next race.
type Provider interface {
	Paragraph(ctx context.Context) (string, error)
}

// MaxParagraphLen keeps START_GAME inside a single datagram.
const MaxParagraphLen = protocol.MaxPayload - len(protocol.StartGame) - 1

var builtin = []string{
	"Cats are popular pets, known for independence and playfulness. They groom themselves and bond with owners.",
	"Cats adapt well to various environments and are skilled hunters. Domestic cats also display hunting behaviors.",
	"Cats communicate through meows, purrs, and body language. Purring can show happiness or comfort when stressed.",
	"Cats may seem solitary but enjoy socializing. They often seek attention and have been human companions for centuries.",
	"Cats are agile and graceful. They jump great heights and twist easily, showcasing impressive physical skills.",
}

// Normalize lowercases the text and collapses whitespace, so the paragraph
// survives the whitespace-split wire format unchanged.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// Valid reports whether a normalized paragraph can be sent in one START_GAME.
func Valid(text string) bool {
	return text != "" && len(text) <= MaxParagraphLen
}

type Static struct {
	mu         sync.Mutex
	rnd        *rand.Rand
	paragraphs []string
}

func NewStatic(rnd *rand.Rand, paragraphs ...string) *Static {
	s := &Static{rnd: rnd}
	for _, p := range paragraphs {
		if p = Normalize(p); Valid(p) {
			s.paragraphs = append(s.paragraphs, p)
		}
	}
	return s
}

// Builtin is the paragraph set used when no paragraph store is configured.
func Builtin(rnd *rand.Rand) *Static {
	return NewStatic(rnd, builtin...)
}

func (s *Static) Paragraph(ctx context.Context) (string, error) {
	if len(s.paragraphs) == 0 {
		return "", ErrNoParagraph
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paragraphs[s.rnd.Intn(len(s.paragraphs))], nil
}

// Fallback asks Primary first and Secondary when that fails.
type Fallback struct {
	Primary   Provider
	Secondary Provider
}

func (f Fallback) Paragraph(ctx context.Context) (string, error) {
	text, err := f.Primary.Paragraph(ctx)
	if err == nil {
		if text = Normalize(text); Valid(text) {
			return text, nil
		}
		err = ErrNoParagraph
	}
	log.Printf("Primary paragraph source failed, using fallback: %v", err)
	return f.Secondary.Paragraph(ctx)
}
