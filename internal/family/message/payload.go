package message

import (
	"strings"

	"github.com/roach88/gameroom/internal/bucket"
	"github.com/roach88/gameroom/internal/family"
)

// Command is a parsed message payload. The concrete types are Create, Post
// and Delete.
type Command interface {
	Target() string
	command()
}

// Create opens a new thread.
type Create struct{ Name string }

// Post appends content to an existing thread ("add" on the wire).
type Post struct {
	Name    string
	Content string
}

// Delete removes a thread.
type Delete struct{ Name string }

func (c Create) Target() string { return c.Name }
func (c Post) Target() string   { return c.Name }
func (c Delete) Target() string { return c.Name }

func (Create) command() {}
func (Post) command()   {}
func (Delete) command() {}

// ParsePayload decodes "name,action,content". Content is everything after
// the second comma.
func ParsePayload(payload []byte) (Command, error) {
	f, err := family.SplitPayload(payload, 3)
	if err != nil {
		return nil, err
	}

	name, action := f[0], f[1]
	if err := family.ValidateName(name); err != nil {
		return nil, err
	}

	switch action {
	case "create":
		return Create{Name: name}, nil
	case "add":
		content := strings.Join(f[2:], bucket.FieldSep)
		if err := family.ValidateText("content", content); err != nil {
			return nil, err
		}
		return Post{Name: name, Content: content}, nil
	case "delete":
		return Delete{Name: name}, nil
	case "":
		return nil, family.InvalidTransaction("action is required")
	default:
		return nil, family.InvalidTransaction("invalid action %q", action)
	}
}
