// Package store persists conversations in a single JSON file.
//
// The file holds {"conversations": [...]} and is rewritten atomically on
// every change. A Store serializes its own readers and writers; separate
// processes sharing one file are not coordinated.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/alnah/go-chatmark/internal/fileutil"
)

// Sentinel errors for store operations.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrStoreCorrupt         = errors.New("conversation store is corrupt")
	ErrEmptyID              = errors.New("conversation id cannot be empty")
	ErrDataDirEmpty         = errors.New("data directory cannot be empty")
)

const (
	// DefaultTitle names conversations until the first user message arrives.
	DefaultTitle = "New Conversation"

	// FileName is the store file inside the data directory.
	FileName = "conversations.json"

	// titleRunes bounds auto-generated titles.
	titleRunes = 30

	fileMode = 0o600
)

// Message is one turn of a conversation.
type Message struct {
	Text      string    `json:"text"`
	IsUser    bool      `json:"isUser"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an ordered exchange between the user and the assistant.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Messages  []Message `json:"messages"`
}

type document struct {
	Conversations []Conversation `json:"conversations"`
}

// Store reads and writes the conversation file.
type Store struct {
	path  string
	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// Open returns a Store backed by dir/conversations.json.
// The file and directory are created on first write.
func Open(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrDataDirEmpty
	}
	return &Store{
		path:  filepath.Join(fileutil.ExpandHome(dir), FileName),
		now:   time.Now,
		newID: uuid.NewString,
	}, nil
}

// Path returns the store file location.
func (s *Store) Path() string {
	return s.path
}

// New creates and persists an empty conversation.
// A blank title becomes DefaultTitle.
func (s *Store) New(title string) (Conversation, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	conv := Conversation{
		ID:        s.newID(),
		Title:     title,
		Timestamp: s.now().UTC(),
		Messages:  []Message{},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Conversation{}, err
	}
	doc.Conversations = append(doc.Conversations, conv)
	if err := s.write(doc); err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

// List returns every conversation, newest first.
func (s *Store) List() ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	convs := make([]Conversation, len(doc.Conversations))
	for i, c := range doc.Conversations {
		convs[i] = clone(c)
	}
	slices.SortStableFunc(convs, func(a, b Conversation) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return convs, nil
}

// Get returns the conversation with the given id.
func (s *Store) Get(id string) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Conversation{}, err
	}
	i := index(doc, id)
	if i < 0 {
		return Conversation{}, fmt.Errorf("%w: %q", ErrConversationNotFound, id)
	}
	return clone(doc.Conversations[i]), nil
}

// Save inserts conv or replaces the stored conversation with the same id.
func (s *Store) Save(conv Conversation) error {
	if conv.ID == "" {
		return ErrEmptyID
	}
	if conv.Timestamp.IsZero() {
		conv.Timestamp = s.now().UTC()
	}
	if conv.Messages == nil {
		conv.Messages = []Message{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if i := index(doc, conv.ID); i >= 0 {
		doc.Conversations[i] = clone(conv)
	} else {
		doc.Conversations = append(doc.Conversations, clone(conv))
	}
	return s.write(doc)
}

// Delete removes the conversation with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	i := index(doc, id)
	if i < 0 {
		return fmt.Errorf("%w: %q", ErrConversationNotFound, id)
	}
	doc.Conversations = slices.Delete(doc.Conversations, i, i+1)
	return s.write(doc)
}

// AppendMessage adds a message to a conversation and returns the result.
// A message whose text and author match an existing one is not added again;
// added reports whether the conversation changed. The first user message
// replaces DefaultTitle with its first 30 characters.
func (s *Store) AppendMessage(id, text string, isUser bool) (conv Conversation, added bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Conversation{}, false, err
	}
	i := index(doc, id)
	if i < 0 {
		return Conversation{}, false, fmt.Errorf("%w: %q", ErrConversationNotFound, id)
	}

	c := &doc.Conversations[i]
	for _, m := range c.Messages {
		if m.Text == text && m.IsUser == isUser {
			return clone(*c), false, nil
		}
	}

	if isUser && c.Title == DefaultTitle && !hasUserMessage(c.Messages) {
		c.Title = Title(text)
	}
	c.Messages = append(c.Messages, Message{
		Text:      text,
		IsUser:    isUser,
		Timestamp: s.now().UTC(),
	})

	if err := s.write(doc); err != nil {
		return Conversation{}, false, err
	}
	return clone(*c), true, nil
}

// Title derives a conversation title from a message: the first 30
// characters, with "..." appended when the text was cut.
func Title(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(text) <= titleRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:titleRunes]) + "..."
}

func (s *Store) load() (document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return document{}, nil
	}
	if err != nil {
		return document{}, fmt.Errorf("reading %s: %w", s.path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return document{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, fmt.Errorf("%w: %s: %v", ErrStoreCorrupt, s.path, err)
	}
	return doc, nil
}

func (s *Store) write(doc document) error {
	if doc.Conversations == nil {
		doc.Conversations = []Conversation{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding conversations: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, data, fileMode); err != nil {
		return fmt.Errorf("writing %s: %w", s.path, err)
	}
	return nil
}

func index(doc document, id string) int {
	return slices.IndexFunc(doc.Conversations, func(c Conversation) bool { return c.ID == id })
}

func hasUserMessage(msgs []Message) bool {
	return slices.ContainsFunc(msgs, func(m Message) bool { return m.IsUser })
}

func clone(c Conversation) Conversation {
	c.Messages = slices.Clone(c.Messages)
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return c
}
