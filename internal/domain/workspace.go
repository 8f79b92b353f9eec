package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNodeNotFound   = errors.New("workspace node not found")
	ErrNotADirectory  = errors.New("workspace node is not a directory")
	ErrNotAFile       = errors.New("workspace node is not a file")
	ErrNameCollision  = errors.New("a sibling with this name already exists")
	ErrRootImmutable  = errors.New("the workspace root cannot be renamed or deleted")

	ErrSnapshotNotFound = errors.New("workspace snapshot not found")
)

type NodeKind string

const (
	NodeFile      NodeKind = "file"
	NodeDirectory NodeKind = "directory"
)

type ContentEncoding string

const (
	EncodingUTF8   ContentEncoding = "utf8"
	EncodingBase64 ContentEncoding = "base64"
)

// WorkspaceNode is one entry of the replicated file tree. The tree is
// client-owned; the server only relays mutations and persists snapshots.
type WorkspaceNode struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Kind            NodeKind         `json:"type"`
	Children        []*WorkspaceNode `json:"children,omitempty"`
	Content         string           `json:"content,omitempty"`
	ContentEncoding ContentEncoding  `json:"contentEncoding,omitempty"`
	MimeType        string           `json:"mimeType,omitempty"`
	IsOpen          bool             `json:"isOpen,omitempty"`
}

func NewWorkspaceRoot() *WorkspaceNode {
	return &WorkspaceNode{
		ID:       uuid.NewString(),
		Name:     "root",
		Kind:     NodeDirectory,
		Children: []*WorkspaceNode{},
	}
}

func NewDirectoryNode(name string) *WorkspaceNode {
	return &WorkspaceNode{
		ID:       uuid.NewString(),
		Name:     name,
		Kind:     NodeDirectory,
		Children: []*WorkspaceNode{},
	}
}

func NewFileNode(name, content string) *WorkspaceNode {
	return &WorkspaceNode{
		ID:              uuid.NewString(),
		Name:            name,
		Kind:            NodeFile,
		Content:         content,
		ContentEncoding: EncodingUTF8,
	}
}

// Find returns the node with the given id in the subtree rooted at n.
func (n *WorkspaceNode) Find(id string) *WorkspaceNode {
	if n == nil {
		return nil
	}
	if n.ID == id {
		return n
	}
	for _, child := range n.Children {
		if found := child.Find(id); found != nil {
			return found
		}
	}
	return nil
}

// FindParent returns the parent of the node with the given id, or nil if the
// id is the root or absent.
func (n *WorkspaceNode) FindParent(id string) *WorkspaceNode {
	if n == nil {
		return nil
	}
	for _, child := range n.Children {
		if child.ID == id {
			return n
		}
		if found := child.FindParent(id); found != nil {
			return found
		}
	}
	return nil
}

// Walk visits every node of the subtree depth-first, parents before children.
func (n *WorkspaceNode) Walk(fn func(node *WorkspaceNode)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Clone deep-copies the subtree. Snapshots always travel as clones so no
// receiver ever aliases guarded state.
func (n *WorkspaceNode) Clone() *WorkspaceNode {
	if n == nil {
		return nil
	}

	clone := *n
	if n.Children != nil {
		clone.Children = make([]*WorkspaceNode, len(n.Children))
		for i, child := range n.Children {
			clone.Children[i] = child.Clone()
		}
	}
	return &clone
}

// Detach removes the child with the given id from n's direct children.
func (n *WorkspaceNode) Detach(id string) *WorkspaceNode {
	for i, child := range n.Children {
		if child.ID == id {
			n.Children = append(n.Children[:i], n.Children[i+1:]...)
			return child
		}
	}
	return nil
}

// HasSibling reports whether dir already holds a child of the given kind and
// name, excluding the node with selfID.
func (n *WorkspaceNode) HasSibling(name string, kind NodeKind, selfID string) bool {
	for _, child := range n.Children {
		if child.ID != selfID && child.Kind == kind && child.Name == name {
			return true
		}
	}
	return false
}

// UniqueChildName de-duplicates a requested name against n's children by
// appending (1), (2), ... before the extension.
func (n *WorkspaceNode) UniqueChildName(name string, kind NodeKind) string {
	if !n.HasSibling(name, kind, "") {
		return name
	}

	base := name
	ext := ""
	if idx := strings.LastIndex(name, "."); idx > 0 {
		base = name[:idx]
		ext = name[idx:]
	}

	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s(%d)%s", base, i, ext)
		if !n.HasSibling(candidate, kind, "") {
			return candidate
		}
	}
}

// Validate checks the structural invariants: single root directory, unique
// ids, no nil children.
func (n *WorkspaceNode) Validate() error {
	if n == nil {
		return ErrNodeNotFound
	}
	if n.Kind != NodeDirectory {
		return ErrNotADirectory
	}

	seen := map[string]bool{}
	var walkErr error
	n.Walk(func(node *WorkspaceNode) {
		if walkErr != nil {
			return
		}
		if node.ID == "" || seen[node.ID] {
			walkErr = fmt.Errorf("duplicate or empty workspace node id %q", node.ID)
			return
		}
		seen[node.ID] = true
	})
	return walkErr
}

// WorkspaceSnapshot is the persisted form of a room's file tree: one
// document per room, upserted on every workspace sync.
type WorkspaceSnapshot struct {
	RoomID    string         `bson:"roomId" json:"roomId"`
	FileTree  *WorkspaceNode `bson:"fileTree" json:"fileTree"`
	UpdatedAt time.Time      `bson:"updatedAt" json:"updatedAt"`
}

// SnapshotRepository persists best-effort workspace snapshots. It is never
// consulted on the live relay path.
type SnapshotRepository interface {
	Save(ctx context.Context, roomID string, fileTree *WorkspaceNode) error
	Load(ctx context.Context, roomID string) (*WorkspaceSnapshot, error)
}
