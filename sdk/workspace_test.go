package sdk

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecoalition/collabd/internal/domain"
	"github.com/codecoalition/collabd/internal/infrastructure/ws"
)

func TestWorkspaceCreateDedupesNames(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace
	rootID := wsp.Root().ID

	first, err := wsp.CreateFile(rootID, "main.go")
	require.NoError(t, err)
	assert.Equal(t, "main.go", first.Name)

	second, err := wsp.CreateFile(rootID, "main.go")
	require.NoError(t, err)
	assert.Equal(t, "main(1).go", second.Name)

	third, err := wsp.CreateFile(rootID, "main.go")
	require.NoError(t, err)
	assert.Equal(t, "main(2).go", third.Name)

	// A directory of the same name does not collide with the files.
	dir, err := wsp.CreateDirectory(rootID, "main.go")
	require.NoError(t, err)
	assert.Equal(t, "main.go", dir.Name)

	var created ws.FileCreatedPayload
	require.NoError(t, f.next(ws.FileCreated).Decode(&created))
	assert.Equal(t, rootID, created.ParentDirID)
	assert.Equal(t, "main.go", created.NewFile.Name)
}

func TestWorkspaceCreateRejectsBadParents(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace
	rootID := wsp.Root().ID

	_, err := wsp.CreateFile("no-such-id", "a.go")
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	file, err := wsp.CreateFile(rootID, "a.go")
	require.NoError(t, err)

	_, err = wsp.CreateFile(file.ID, "b.go")
	assert.ErrorIs(t, err, domain.ErrNotADirectory)
}

func TestWorkspaceRename(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace
	rootID := wsp.Root().ID

	assert.ErrorIs(t, wsp.Rename(rootID, "renamed"), domain.ErrRootImmutable)

	_, err := wsp.CreateFile(rootID, "a.go")
	require.NoError(t, err)
	b, err := wsp.CreateFile(rootID, "b.go")
	require.NoError(t, err)

	assert.ErrorIs(t, wsp.Rename(b.ID, "a.go"), domain.ErrNameCollision)

	require.NoError(t, wsp.Rename(b.ID, "c.go"))
	assert.Equal(t, "c.go", wsp.Root().Find(b.ID).Name)

	var renamed ws.FileRenamedPayload
	require.NoError(t, f.next(ws.FileRenamed).Decode(&renamed))
	assert.Equal(t, b.ID, renamed.FileID)
	assert.Equal(t, "c.go", renamed.NewName)
}

func TestWorkspaceDeleteClosesOpenDescendants(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace
	rootID := wsp.Root().ID

	dir, err := wsp.CreateDirectory(rootID, "src")
	require.NoError(t, err)
	file, err := wsp.CreateFile(dir.ID, "main.go")
	require.NoError(t, err)
	require.NoError(t, wsp.Open(file.ID))
	require.Equal(t, []string{file.ID}, wsp.OpenFileIDs())

	assert.ErrorIs(t, wsp.Delete(rootID), domain.ErrRootImmutable)

	require.NoError(t, wsp.Delete(dir.ID))
	assert.Nil(t, wsp.Root().Find(dir.ID))
	assert.Nil(t, wsp.Root().Find(file.ID))
	assert.Empty(t, wsp.OpenFileIDs())

	var deleted ws.DirectoryDeletedPayload
	require.NoError(t, f.next(ws.DirectoryDeleted).Decode(&deleted))
	assert.Equal(t, dir.ID, deleted.DirID)
}

func TestWorkspaceContentDebounce(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace

	file, err := wsp.CreateFile(wsp.Root().ID, "notes.txt")
	require.NoError(t, err)

	// A burst of edits travels as a single update carrying the final text.
	require.NoError(t, wsp.UpdateContent(file.ID, "h"))
	require.NoError(t, wsp.UpdateContent(file.ID, "he"))
	require.NoError(t, wsp.UpdateContent(file.ID, "hello"))

	var updated ws.FileUpdatedPayload
	require.NoError(t, f.next(ws.FileUpdated).Decode(&updated))
	assert.Equal(t, file.ID, updated.FileID)
	assert.Equal(t, "hello", updated.NewContent)

	f.expectNone(ws.FileUpdated, 200*time.Millisecond)
}

func TestWorkspaceAutosaveCarriesWholeTree(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	acceptJoin(t, f, client, "s1", "alice")
	wsp := client.Workspace

	_, err := wsp.CreateFile(wsp.Root().ID, "a.go")
	require.NoError(t, err)

	var sync ws.WorkspaceSyncPayload
	require.NoError(t, f.next(ws.WorkspaceSync).Decode(&sync))
	require.NotNil(t, sync.FileStructure)
	assert.Len(t, sync.FileStructure.Children, 1)
}

func TestWorkspaceAutosaveWaitsForMembership(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace

	// Edits made before admission stay local: no snapshot leaves the client.
	_, err := wsp.CreateFile(wsp.Root().ID, "draft.go")
	require.NoError(t, err)
	f.expectNone(ws.WorkspaceSync, 500*time.Millisecond)
}

func TestWorkspaceAutosaveDisabled(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	acceptJoin(t, f, client, "s1", "alice")
	wsp := client.Workspace
	wsp.SetAutosave(false)

	_, err := wsp.CreateFile(wsp.Root().ID, "a.go")
	require.NoError(t, err)
	f.expectNone(ws.WorkspaceSync, 500*time.Millisecond)

	// Re-enabling picks snapshots back up on the next mutation.
	wsp.SetAutosave(true)
	_, err = wsp.CreateFile(wsp.Root().ID, "b.go")
	require.NoError(t, err)

	var sync ws.WorkspaceSyncPayload
	require.NoError(t, f.next(ws.WorkspaceSync).Decode(&sync))
	require.NotNil(t, sync.FileStructure)
	assert.Len(t, sync.FileStructure.Children, 2)
}

func TestWorkspaceAppliesRemoteMutations(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace

	// A full snapshot replaces the replica wholesale.
	tree := domain.NewWorkspaceRoot()
	readme := domain.NewFileNode("README.md", "hello")
	tree.Children = append(tree.Children, readme)
	f.push(ws.SyncFileStructure, ws.SyncFileStructurePayload{FileStructure: tree})

	require.Eventually(t, func() bool {
		return wsp.Root().Find(readme.ID) != nil
	}, 2*time.Second, 10*time.Millisecond)

	remote := domain.NewFileNode("remote.go", "package remote")
	f.push(ws.FileCreated, ws.FileCreatedPayload{ParentDirID: tree.ID, NewFile: remote})
	require.Eventually(t, func() bool {
		return wsp.Root().Find(remote.ID) != nil
	}, 2*time.Second, 10*time.Millisecond)

	// A replayed create for an id we already hold is dropped.
	f.push(ws.FileCreated, ws.FileCreatedPayload{ParentDirID: tree.ID, NewFile: remote})

	f.push(ws.FileUpdated, ws.FileUpdatedPayload{FileID: remote.ID, NewContent: "package main"})
	require.Eventually(t, func() bool {
		node := wsp.Root().Find(remote.ID)
		return node != nil && node.Content == "package main"
	}, 2*time.Second, 10*time.Millisecond)

	f.push(ws.FileRenamed, ws.FileRenamedPayload{FileID: remote.ID, NewName: "main.go"})
	require.Eventually(t, func() bool {
		node := wsp.Root().Find(remote.ID)
		return node != nil && node.Name == "main.go"
	}, 2*time.Second, 10*time.Millisecond)

	f.push(ws.FileDeleted, ws.FileDeletedPayload{FileID: remote.ID})
	require.Eventually(t, func() bool {
		return wsp.Root().Find(remote.ID) == nil
	}, 2*time.Second, 10*time.Millisecond)

	root := wsp.Root()
	assert.Len(t, root.Children, 1)
	assert.Equal(t, "README.md", root.Children[0].Name)
}

func TestWorkspaceRemoteEditSupersedesPendingLocal(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace

	file, err := wsp.CreateFile(wsp.Root().ID, "shared.txt")
	require.NoError(t, err)

	// Local edit is still waiting on its debounce when the remote one lands.
	require.NoError(t, wsp.UpdateContent(file.ID, "local draft"))
	f.push(ws.FileUpdated, ws.FileUpdatedPayload{FileID: file.ID, NewContent: "remote wins"})

	require.Eventually(t, func() bool {
		return wsp.Root().Find(file.ID).Content == "remote wins"
	}, 2*time.Second, 10*time.Millisecond)

	// The stopped local flush never broadcasts the stale draft.
	f.expectNone(ws.FileUpdated, 1200*time.Millisecond)
}

func TestWorkspaceImportFileEncodings(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace
	rootID := wsp.Root().ID

	text, err := wsp.ImportFile(rootID, "notes.txt", []byte("plain text"), "text/plain")
	require.NoError(t, err)
	assert.Equal(t, domain.EncodingUTF8, text.ContentEncoding)
	assert.Equal(t, "plain text", text.Content)

	raw := []byte{0xff, 0xfe, 0x00, 0x89, 0x50}
	binary, err := wsp.ImportFile(rootID, "logo.png", raw, "image/png")
	require.NoError(t, err)
	assert.Equal(t, domain.EncodingBase64, binary.ContentEncoding)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), binary.Content)
	assert.Equal(t, "image/png", binary.MimeType)
}

func TestWorkspaceImportZip(t *testing.T) {
	f := newFakeServer(t)
	client := newConnectedClient(t, f)
	wsp := client.Workspace
	rootID := wsp.Root().ID

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"top.txt":          "top level",
		"src/main.go":      "package main",
		"src/util/util.go": "package util",
	} {
		entry, err := zw.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	// Hostile entries escaping the target directory are skipped.
	escape, err := zw.Create("../escape.txt")
	require.NoError(t, err)
	_, err = escape.Write([]byte("nope"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	require.NoError(t, wsp.ImportZip(rootID, buf.Bytes()))

	root := wsp.Root()
	names := make(map[string]domain.NodeKind, len(root.Children))
	for _, child := range root.Children {
		names[child.Name] = child.Kind
	}
	// Root-level entries land directly under the import target, with no
	// phantom "." directory for path.Dir's spelling of the root.
	assert.Len(t, root.Children, 2)
	assert.Equal(t, domain.NodeFile, names["top.txt"])
	assert.Equal(t, domain.NodeDirectory, names["src"])
	assert.NotContains(t, names, ".")
	assert.NotContains(t, names, "escape.txt")

	var src *domain.WorkspaceNode
	for _, child := range root.Children {
		if child.Name == "src" {
			src = child
		}
	}
	require.NotNil(t, src)

	var util *domain.WorkspaceNode
	foundMain := false
	for _, child := range src.Children {
		switch child.Name {
		case "main.go":
			foundMain = true
			assert.Equal(t, "package main", child.Content)
		case "util":
			util = child
		}
	}
	assert.True(t, foundMain)
	require.NotNil(t, util)
	require.Len(t, util.Children, 1)
	assert.Equal(t, "util.go", util.Children[0].Name)
}
