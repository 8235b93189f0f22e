package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const boardManifest = `
class "Board" {
  property "color" {
    type     = "string"
    default  = "red"
    inherits = true
  }
  set "cells" {
    target = "model"
    class  = "Cell"
    binds  = true
  }
}

class "Cell" {}
`

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	classesJSON, classesSelect = false, ""
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "board.hcl"), []byte(content), 0o644))
	return dir
}

func TestClassesCommand(t *testing.T) {
	dir := writeManifest(t, boardManifest)
	out, err := execute(t, "classes", dir)
	require.NoError(t, err)
	assert.Equal(t, "Board\n  property color\n  set      cells\nCell\n", out)
}

func TestClassesCommand_JSON(t *testing.T) {
	dir := writeManifest(t, boardManifest)
	out, err := execute(t, "classes", "--json", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"property"`)
	assert.Contains(t, out, `"cells"`)

	out, err = execute(t, "classes", "--select", "$[*].name", dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"Board"`)
	assert.Contains(t, out, `"Cell"`)
	assert.NotContains(t, out, "fasteners")

	_, err = execute(t, "classes", "--select", "$[", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid jsonpath")
}

func TestCheckCommand(t *testing.T) {
	dir := writeManifest(t, boardManifest)
	out, err := execute(t, "check", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 2 classes, 2 fasteners")
}

func TestCheckCommand_Errors(t *testing.T) {
	dir := writeManifest(t, `
class "Board" {
  ref "owner" {
    target = "model"
    class  = "Nope"
  }
}
`)
	_, err := execute(t, "check", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unknown class")

	_, err = execute(t, "check", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no classes found")

	_, err = execute(t, "classes")
	require.Error(t, err)
}
