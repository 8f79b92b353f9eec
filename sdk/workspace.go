package sdk

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"io"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

const (
	contentDebounce  = time.Second
	autosaveDebounce = 200 * time.Millisecond
)

// Workspace is the local replica of the room's file tree. Local mutations are
// applied immediately and broadcast; remote mutations are applied last-writer-
// wins. The server never arbitrates, so both sides converge on whatever
// arrived last.
type Workspace struct {
	client *Client

	mu           sync.Mutex
	root         *domain.WorkspaceNode
	openFiles    []string
	activeFileID string
	autosave     bool

	contentTimers map[string]*time.Timer
	autosaveTimer *time.Timer

	// OnChange fires after any mutation, local or remote. Optional.
	OnChange func()
}

func newWorkspace(client *Client) *Workspace {
	return &Workspace{
		client:        client,
		root:          domain.NewWorkspaceRoot(),
		autosave:      true,
		contentTimers: make(map[string]*time.Timer),
	}
}

// SetAutosave toggles the debounced snapshot push to the server's store.
func (w *Workspace) SetAutosave(enabled bool) {
	w.mu.Lock()
	w.autosave = enabled
	if !enabled && w.autosaveTimer != nil {
		w.autosaveTimer.Stop()
	}
	w.mu.Unlock()
}

// Root returns a deep copy of the replica.
func (w *Workspace) Root() *domain.WorkspaceNode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root.Clone()
}

// OpenFileIDs returns the ids of files currently open locally.
func (w *Workspace) OpenFileIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.openFiles...)
}

// CreateDirectory creates a directory under the given parent. A name that
// collides with a sibling directory is de-duplicated with a (n) suffix.
func (w *Workspace) CreateDirectory(parentID, name string) (*domain.WorkspaceNode, error) {
	w.mu.Lock()

	parent := w.root.Find(parentID)
	if parent == nil {
		w.mu.Unlock()
		return nil, domain.ErrNodeNotFound
	}
	if parent.Kind != domain.NodeDirectory {
		w.mu.Unlock()
		return nil, domain.ErrNotADirectory
	}

	dir := domain.NewDirectoryNode(parent.UniqueChildName(name, domain.NodeDirectory))
	parent.Children = append(parent.Children, dir)
	created := dir.Clone()
	w.mu.Unlock()

	w.notifyChanged()
	w.scheduleAutosave()
	return created, w.client.send(ws.DirectoryCreated, ws.DirectoryCreatedPayload{
		ParentDirID:  parentID,
		NewDirectory: created,
	})
}

// CreateFile creates an empty file under the given parent, de-duplicating the
// name against sibling files.
func (w *Workspace) CreateFile(parentID, name string) (*domain.WorkspaceNode, error) {
	return w.createFile(parentID, name, "", domain.EncodingUTF8, "")
}

func (w *Workspace) createFile(parentID, name, content string, encoding domain.ContentEncoding, mimeType string) (*domain.WorkspaceNode, error) {
	w.mu.Lock()

	parent := w.root.Find(parentID)
	if parent == nil {
		w.mu.Unlock()
		return nil, domain.ErrNodeNotFound
	}
	if parent.Kind != domain.NodeDirectory {
		w.mu.Unlock()
		return nil, domain.ErrNotADirectory
	}

	file := domain.NewFileNode(parent.UniqueChildName(name, domain.NodeFile), content)
	file.ContentEncoding = encoding
	file.MimeType = mimeType
	parent.Children = append(parent.Children, file)
	created := file.Clone()
	w.mu.Unlock()

	w.notifyChanged()
	w.scheduleAutosave()
	return created, w.client.send(ws.FileCreated, ws.FileCreatedPayload{
		ParentDirID: parentID,
		NewFile:     created,
	})
}

// Rename renames a file or directory. Renaming the root or onto an existing
// sibling name is rejected.
func (w *Workspace) Rename(id, newName string) error {
	w.mu.Lock()

	if id == w.root.ID {
		w.mu.Unlock()
		return domain.ErrRootImmutable
	}

	node := w.root.Find(id)
	if node == nil {
		w.mu.Unlock()
		return domain.ErrNodeNotFound
	}

	parent := w.root.FindParent(id)
	if parent != nil && parent.HasSibling(newName, node.Kind, id) {
		w.mu.Unlock()
		return domain.ErrNameCollision
	}

	node.Name = newName
	kind := node.Kind
	w.mu.Unlock()

	w.notifyChanged()
	w.scheduleAutosave()

	if kind == domain.NodeDirectory {
		return w.client.send(ws.DirectoryRenamed, ws.DirectoryRenamedPayload{DirID: id, NewName: newName})
	}
	return w.client.send(ws.FileRenamed, ws.FileRenamedPayload{FileID: id, NewName: newName})
}

// Delete removes a file or directory. Deleting a directory closes every open
// file underneath it. The root cannot be deleted.
func (w *Workspace) Delete(id string) error {
	w.mu.Lock()

	if id == w.root.ID {
		w.mu.Unlock()
		return domain.ErrRootImmutable
	}

	parent := w.root.FindParent(id)
	if parent == nil {
		w.mu.Unlock()
		return domain.ErrNodeNotFound
	}

	removed := parent.Detach(id)
	w.closeSubtreeLocked(removed)
	kind := removed.Kind
	w.mu.Unlock()

	w.notifyChanged()
	w.scheduleAutosave()

	if kind == domain.NodeDirectory {
		return w.client.send(ws.DirectoryDeleted, ws.DirectoryDeletedPayload{DirID: id})
	}
	return w.client.send(ws.FileDeleted, ws.FileDeletedPayload{FileID: id})
}

// UpdateContent applies an edit locally and broadcasts it after a short
// debounce, so a typing burst travels as one update.
func (w *Workspace) UpdateContent(fileID, content string) error {
	w.mu.Lock()

	node := w.root.Find(fileID)
	if node == nil {
		w.mu.Unlock()
		return domain.ErrNodeNotFound
	}
	if node.Kind != domain.NodeFile {
		w.mu.Unlock()
		return domain.ErrNotAFile
	}

	node.Content = content

	if timer, ok := w.contentTimers[fileID]; ok {
		timer.Stop()
	}
	w.contentTimers[fileID] = time.AfterFunc(contentDebounce, func() {
		w.flushContent(fileID)
	})
	w.mu.Unlock()

	w.notifyChanged()
	return nil
}

func (w *Workspace) flushContent(fileID string) {
	w.mu.Lock()
	delete(w.contentTimers, fileID)
	node := w.root.Find(fileID)
	if node == nil {
		w.mu.Unlock()
		return
	}
	content := node.Content
	w.mu.Unlock()

	w.scheduleAutosave()
	if err := w.client.send(ws.FileUpdated, ws.FileUpdatedPayload{FileID: fileID, NewContent: content}); err != nil {
		w.client.emitError(err)
	}
}

// Open marks a file open locally and tells the room which file we look at.
func (w *Workspace) Open(fileID string) error {
	w.mu.Lock()

	node := w.root.Find(fileID)
	if node == nil {
		w.mu.Unlock()
		return domain.ErrNodeNotFound
	}
	if node.Kind != domain.NodeFile {
		w.mu.Unlock()
		return domain.ErrNotAFile
	}

	node.IsOpen = true
	if !contains(w.openFiles, fileID) {
		w.openFiles = append(w.openFiles, fileID)
	}
	w.activeFileID = fileID
	w.mu.Unlock()

	w.notifyChanged()
	return w.client.send(ws.FileOpened, ws.FileOpenedPayload{FileID: fileID})
}

func (w *Workspace) Close(fileID string) {
	w.mu.Lock()
	if node := w.root.Find(fileID); node != nil {
		node.IsOpen = false
	}
	w.openFiles = remove(w.openFiles, fileID)
	if w.activeFileID == fileID {
		w.activeFileID = ""
		if len(w.openFiles) > 0 {
			w.activeFileID = w.openFiles[len(w.openFiles)-1]
		}
	}
	w.mu.Unlock()

	w.notifyChanged()
}

// ImportFile creates a file from raw bytes. Content that is not valid UTF-8
// is carried base64-encoded with its mime type so binary assets survive the
// JSON transport.
func (w *Workspace) ImportFile(parentID, name string, data []byte, mimeType string) (*domain.WorkspaceNode, error) {
	if utf8.Valid(data) {
		return w.createFile(parentID, name, string(data), domain.EncodingUTF8, mimeType)
	}
	return w.createFile(parentID, name, base64.StdEncoding.EncodeToString(data), domain.EncodingBase64, mimeType)
}

// ImportZip expands an archive under the given parent, creating directories
// and files entry by entry so every member replays the same operations.
func (w *Workspace) ImportZip(parentID string, data []byte) error {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return err
	}

	// Directory ids per archive path, so nested entries land in the right
	// parent even when the archive has no explicit directory entries.
	// path.Dir returns "." for root-level entries, so both spellings of
	// "no directory" map to the target parent.
	dirIDs := map[string]string{"": parentID, ".": parentID}

	ensureDir := func(dirPath string) (string, error) {
		if id, ok := dirIDs[dirPath]; ok {
			return id, nil
		}

		parts := strings.Split(dirPath, "/")
		currentPath := ""
		currentID := parentID
		for _, part := range parts {
			if currentPath == "" {
				currentPath = part
			} else {
				currentPath = currentPath + "/" + part
			}

			if id, ok := dirIDs[currentPath]; ok {
				currentID = id
				continue
			}

			dir, err := w.CreateDirectory(currentID, part)
			if err != nil {
				return "", err
			}
			dirIDs[currentPath] = dir.ID
			currentID = dir.ID
		}
		return currentID, nil
	}

	for _, entry := range reader.File {
		cleaned := path.Clean(entry.Name)
		if cleaned == "." || strings.HasPrefix(cleaned, "..") {
			continue
		}

		if entry.FileInfo().IsDir() {
			if _, err := ensureDir(strings.TrimSuffix(cleaned, "/")); err != nil {
				return err
			}
			continue
		}

		dirID, err := ensureDir(path.Dir(cleaned))
		if err != nil {
			return err
		}

		rc, err := entry.Open()
		if err != nil {
			return err
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return err
		}

		if _, err := w.ImportFile(dirID, path.Base(cleaned), data, ""); err != nil {
			return err
		}
	}

	return nil
}

// pushSnapshotTo sends the full replica to one specific member, used when a
// newcomer joins the room.
func (w *Workspace) pushSnapshotTo(connectionID string) {
	w.mu.Lock()
	snapshot := w.root.Clone()
	open := make([]*domain.WorkspaceNode, 0, len(w.openFiles))
	for _, id := range w.openFiles {
		if node := snapshot.Find(id); node != nil {
			open = append(open, node)
		}
	}
	var active *domain.WorkspaceNode
	if w.activeFileID != "" {
		active = snapshot.Find(w.activeFileID)
	}
	w.mu.Unlock()

	if err := w.client.send(ws.SyncFileStructure, ws.SyncFileStructurePayload{
		FileStructure:      snapshot,
		OpenFiles:          open,
		ActiveFile:         active,
		TargetConnectionID: connectionID,
	}); err != nil {
		w.client.emitError(err)
	}
}

func (w *Workspace) handleRemote(msg *ws.Message) {
	switch msg.Event {
	case ws.SyncFileStructure:
		var payload ws.SyncFileStructurePayload
		if msg.Decode(&payload) != nil || payload.FileStructure == nil {
			return
		}
		w.mu.Lock()
		w.root = payload.FileStructure
		w.mu.Unlock()

	case ws.DirectoryCreated:
		var payload ws.DirectoryCreatedPayload
		if msg.Decode(&payload) != nil || payload.NewDirectory == nil {
			return
		}
		w.applyCreate(payload.ParentDirID, payload.NewDirectory)

	case ws.FileCreated:
		var payload ws.FileCreatedPayload
		if msg.Decode(&payload) != nil || payload.NewFile == nil {
			return
		}
		w.applyCreate(payload.ParentDirID, payload.NewFile)

	case ws.DirectoryUpdated:
		var payload ws.DirectoryUpdatedPayload
		if msg.Decode(&payload) != nil {
			return
		}
		w.mu.Lock()
		if dir := w.root.Find(payload.DirID); dir != nil && dir.Kind == domain.NodeDirectory {
			dir.Children = payload.Children
		}
		w.mu.Unlock()

	case ws.DirectoryRenamed:
		var payload ws.DirectoryRenamedPayload
		if msg.Decode(&payload) != nil {
			return
		}
		w.applyRename(payload.DirID, payload.NewName)

	case ws.FileRenamed:
		var payload ws.FileRenamedPayload
		if msg.Decode(&payload) != nil {
			return
		}
		w.applyRename(payload.FileID, payload.NewName)

	case ws.DirectoryDeleted:
		var payload ws.DirectoryDeletedPayload
		if msg.Decode(&payload) != nil {
			return
		}
		w.applyDelete(payload.DirID)

	case ws.FileDeleted:
		var payload ws.FileDeletedPayload
		if msg.Decode(&payload) != nil {
			return
		}
		w.applyDelete(payload.FileID)

	case ws.FileUpdated:
		var payload ws.FileUpdatedPayload
		if msg.Decode(&payload) != nil {
			return
		}
		w.mu.Lock()
		if node := w.root.Find(payload.FileID); node != nil && node.Kind == domain.NodeFile {
			node.Content = payload.NewContent
			// A remote edit supersedes any local edit still waiting to
			// flush for the same file.
			if timer, ok := w.contentTimers[payload.FileID]; ok {
				timer.Stop()
				delete(w.contentTimers, payload.FileID)
			}
		}
		w.mu.Unlock()
	}

	w.notifyChanged()
}

func (w *Workspace) applyCreate(parentID string, node *domain.WorkspaceNode) {
	w.mu.Lock()
	defer w.mu.Unlock()

	parent := w.root.Find(parentID)
	if parent == nil || parent.Kind != domain.NodeDirectory {
		return
	}
	if w.root.Find(node.ID) != nil {
		return
	}
	parent.Children = append(parent.Children, node)
}

func (w *Workspace) applyRename(id, newName string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if node := w.root.Find(id); node != nil {
		node.Name = newName
	}
}

func (w *Workspace) applyDelete(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	parent := w.root.FindParent(id)
	if parent == nil {
		return
	}
	removed := parent.Detach(id)
	w.closeSubtreeLocked(removed)
}

// closeSubtreeLocked closes every open file within the removed subtree.
// Must be called with w.mu held.
func (w *Workspace) closeSubtreeLocked(removed *domain.WorkspaceNode) {
	if removed == nil {
		return
	}
	removed.Walk(func(node *domain.WorkspaceNode) {
		if node.Kind != domain.NodeFile {
			return
		}
		w.openFiles = remove(w.openFiles, node.ID)
		if w.activeFileID == node.ID {
			w.activeFileID = ""
		}
	})
	if w.activeFileID == "" && len(w.openFiles) > 0 {
		w.activeFileID = w.openFiles[len(w.openFiles)-1]
	}
}

// scheduleAutosave pushes the whole tree to the server's snapshot store after
// a short quiet period. Only admitted members persist; an unjoined client
// must never overwrite a room's snapshot with its empty replica.
func (w *Workspace) scheduleAutosave() {
	w.mu.Lock()
	if !w.autosave {
		w.mu.Unlock()
		return
	}
	if w.autosaveTimer != nil {
		w.autosaveTimer.Stop()
	}
	w.autosaveTimer = time.AfterFunc(autosaveDebounce, func() {
		if w.client.State() != StateJoined {
			return
		}

		w.mu.Lock()
		snapshot := w.root.Clone()
		w.mu.Unlock()

		if err := w.client.send(ws.WorkspaceSync, ws.WorkspaceSyncPayload{FileStructure: snapshot}); err != nil {
			w.client.emitError(err)
		}
	})
	w.mu.Unlock()
}

func (w *Workspace) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.autosaveTimer != nil {
		w.autosaveTimer.Stop()
	}
	for id, timer := range w.contentTimers {
		timer.Stop()
		delete(w.contentTimers, id)
	}
}

func (w *Workspace) notifyChanged() {
	if w.OnChange != nil {
		w.OnChange()
	}
}

func contains(values []string, v string) bool {
	for _, value := range values {
		if value == v {
			return true
		}
	}
	return false
}

func remove(values []string, v string) []string {
	out := values[:0]
	for _, value := range values {
		if value != v {
			out = append(out, value)
		}
	}
	return out
}
