// Copyright 2026 The Torvisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package torvisor

import (
	"os"
)

// FileSystem is the small set of file operations the supervisor needs.
// None of them fail loudly: the supervisor works on a best-effort basis,
// and the daemon itself will complain about anything that really matters.
type FileSystem interface {
	// MakeDirAll creates the directory and any missing parents.
	MakeDirAll(dir string) bool

	// FileExists is true if path names a regular file.
	FileExists(path string) bool

	// DirExists is true if path names a directory.
	DirExists(path string) bool

	// ReadText returns the contents of the file, if it could be read.
	ReadText(path string) (string, bool)

	// WriteText replaces the contents of the file.
	WriteText(path string, text string) bool
}

// OSFileSystem implements FileSystem on the host file system.
type OSFileSystem struct{}

func (OSFileSystem) MakeDirAll(dir string) bool {
	if dir == "" {
		return false
	}
	return os.MkdirAll(dir, 0o700) == nil
}

func (OSFileSystem) FileExists(path string) bool {
	if path == "" {
		return false
	}
	fi, e := os.Stat(path)
	return e == nil && fi.Mode().IsRegular()
}

func (OSFileSystem) DirExists(path string) bool {
	if path == "" {
		return false
	}
	fi, e := os.Stat(path)
	return e == nil && fi.IsDir()
}

func (OSFileSystem) ReadText(path string) (string, bool) {
	b, e := os.ReadFile(path)
	if e != nil {
		return "", false
	}
	return string(b), true
}

func (OSFileSystem) WriteText(path string, text string) bool {
	return os.WriteFile(path, []byte(text), 0o600) == nil
}
