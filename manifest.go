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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HiddenServiceManifest describes one hidden service in a Manifest.
type HiddenServiceManifest struct {
	Directory string              `json:"directory" yaml:"directory"`
	Ports     []HiddenServicePort `json:"ports" yaml:"ports"`
}

// Manifest describes a supervisor in JSON or YAML.  Durations are
// strings such as "1s"; omitted booleans keep their defaults.
type Manifest struct {
	Name             string                  `json:"name" yaml:"name"`
	Executable       string                  `json:"executable" yaml:"executable"`
	ConfigFile       string                  `json:"configFile" yaml:"configFile"`
	Persist          *bool                   `json:"persist,omitempty" yaml:"persist,omitempty"`
	MakeDirs         *bool                   `json:"makeDirs,omitempty" yaml:"makeDirs,omitempty"`
	RestartDelay     string                  `json:"restartDelay,omitempty" yaml:"restartDelay,omitempty"`
	PollInterval     string                  `json:"pollInterval,omitempty" yaml:"pollInterval,omitempty"`
	AvoidDiskWrites  *bool                   `json:"avoidDiskWrites,omitempty" yaml:"avoidDiskWrites,omitempty"`
	DataDirectory    string                  `json:"dataDirectory,omitempty" yaml:"dataDirectory,omitempty"`
	ControlPort      string                  `json:"controlPort,omitempty" yaml:"controlPort,omitempty"`
	ControlPortFlags string                  `json:"controlPortFlags,omitempty" yaml:"controlPortFlags,omitempty"`
	SocksPort        string                  `json:"socksPort,omitempty" yaml:"socksPort,omitempty"`
	SocksPortFlags   *string                 `json:"socksPortFlags,omitempty" yaml:"socksPortFlags,omitempty"`
	GeoIPFile        string                  `json:"geoIPFile,omitempty" yaml:"geoIPFile,omitempty"`
	GeoIPv6File      string                  `json:"geoIPv6File,omitempty" yaml:"geoIPv6File,omitempty"`
	PreparePortCount int                     `json:"preparePortCount,omitempty" yaml:"preparePortCount,omitempty"`
	Custom           []string                `json:"custom,omitempty" yaml:"custom,omitempty"`
	HiddenServices   []HiddenServiceManifest `json:"hiddenServices,omitempty" yaml:"hiddenServices,omitempty"`
}

func (m *Manifest) check() error {
	if m.Executable == "" {
		return fmt.Errorf("%w: no executable", ErrBadManifest)
	}
	if m.ConfigFile == "" {
		return fmt.Errorf("%w: no config file", ErrBadManifest)
	}
	if m.PreparePortCount < 0 {
		return fmt.Errorf("%w: negative port count", ErrBadManifest)
	}
	for _, d := range []string{m.RestartDelay, m.PollInterval} {
		if d == "" {
			continue
		}
		if _, e := time.ParseDuration(d); e != nil {
			return fmt.Errorf("%w: %v", ErrBadManifest, e)
		}
	}
	for _, hs := range m.HiddenServices {
		if hs.Directory == "" {
			return fmt.Errorf("%w: hidden service without directory", ErrBadManifest)
		}
	}
	return nil
}

// NewSupervisorFromManifest creates a supervisor, not yet running, from m.
func NewSupervisorFromManifest(m Manifest) (*Supervisor, error) {
	return NewSupervisorFromManifestWith(m, OSFileSystem{}, NewTCPPortAllocator())
}

// NewSupervisorFromManifestWith is NewSupervisorFromManifest with
// explicit collaborators.
func NewSupervisorFromManifestWith(m Manifest, fs FileSystem, alloc PortAllocator) (*Supervisor, error) {
	if e := m.check(); e != nil {
		return nil, e
	}
	s := NewSupervisorWith(m.Name, m.Executable, m.ConfigFile, fs, alloc)
	if m.Persist != nil {
		s.SetProperty(PropPersist, *m.Persist)
	}
	if m.MakeDirs != nil {
		s.SetProperty(PropMakeDirs, *m.MakeDirs)
	}
	if m.RestartDelay != "" {
		d, _ := time.ParseDuration(m.RestartDelay)
		if e := s.SetProperty(PropRestartDelay, d); e != nil {
			s.config.Close()
			return nil, e
		}
	}
	if m.PollInterval != "" {
		d, _ := time.ParseDuration(m.PollInterval)
		if e := s.SetProperty(PropPollInterval, d); e != nil {
			s.config.Close()
			return nil, e
		}
	}

	c := s.Config()
	if m.AvoidDiskWrites != nil {
		c.AvoidDiskWrites = *m.AvoidDiskWrites
	}
	c.DataDirectory = m.DataDirectory
	if m.ControlPort != "" {
		c.ControlPort = m.ControlPort
	}
	c.ControlPortFlags = m.ControlPortFlags
	if m.SocksPort != "" {
		c.SocksPort = m.SocksPort
	}
	if m.SocksPortFlags != nil {
		c.SocksPortFlags = *m.SocksPortFlags
	}
	c.GeoIPFile = m.GeoIPFile
	c.GeoIPv6File = m.GeoIPv6File
	c.PreparePortCount = m.PreparePortCount
	for _, line := range m.Custom {
		c.AddCustom(line)
	}
	for _, hm := range m.HiddenServices {
		hs := c.AddHiddenService(hm.Directory)
		for _, p := range hm.Ports {
			hs.AddPortHost(p.OnionPort, p.ServerPort, p.ServerHost)
		}
	}
	return s, nil
}

// NewSupervisorFromJson reads a JSON manifest.
func NewSupervisorFromJson(r io.Reader) (*Supervisor, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var m Manifest
	if e := dec.Decode(&m); e != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, e)
	}
	return NewSupervisorFromManifest(m)
}

// NewSupervisorFromYAML reads a YAML manifest.
func NewSupervisorFromYAML(r io.Reader) (*Supervisor, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var m Manifest
	if e := dec.Decode(&m); e != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadManifest, e)
	}
	return NewSupervisorFromManifest(m)
}

// ParseManifest decodes a manifest; yamlFormat selects YAML over JSON.
func ParseManifest(data []byte, yamlFormat bool) (Manifest, error) {
	var m Manifest
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var e error
	if yamlFormat {
		e = yaml.Unmarshal(data, &m)
	} else {
		e = json.Unmarshal(data, &m)
	}
	if e != nil {
		return m, fmt.Errorf("%w: %v", ErrBadManifest, e)
	}
	return m, m.check()
}

// LoadManifest reads the manifest in path.  Files ending in .yaml or .yml
// are YAML, anything else is JSON.  A manifest without a name is named
// after its file.
func LoadManifest(path string) (Manifest, error) {
	data, e := os.ReadFile(path)
	if e != nil {
		return Manifest{}, e
	}
	ext := strings.ToLower(filepath.Ext(path))
	m, e := ParseManifest(data, ext == ".yaml" || ext == ".yml")
	if e != nil {
		return m, fmt.Errorf("%s: %w", path, e)
	}
	if m.Name == "" {
		m.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return m, nil
}

// LoadManifestDir loads every .json, .yaml and .yml file in dir, in name
// order.  Files that fail to load are skipped; their errors are joined
// in the returned error, alongside the manifests that did load.
func LoadManifestDir(dir string) ([]Manifest, error) {
	ents, e := os.ReadDir(dir)
	if e != nil {
		return nil, e
	}
	var mfs []Manifest
	var errs []error
	for _, ent := range ents {
		name := ent.Name()
		if ent.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(name)) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}
		m, e := LoadManifest(filepath.Join(dir, name))
		if e != nil {
			errs = append(errs, e)
			continue
		}
		mfs = append(mfs, m)
	}
	return mfs, errors.Join(errs...)
}
