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
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func newTestConfig(fs FileSystem, alloc PortAllocator) *Config {
	c := NewConfigWith(fs, alloc)
	return c
}

func TestConfigDefaults(t *testing.T) {
	Convey("A new config has the documented defaults", t, func() {
		c := newTestConfig(newMemFS(), &seqAlloc{base: 9050})
		defer c.Close()
		So(c.AvoidDiskWrites, ShouldBeTrue)
		So(c.ControlPort, ShouldEqual, PortAuto)
		So(c.SocksPort, ShouldEqual, PortAuto)
		So(c.SocksPortFlags, ShouldEqual, "IPv6Traffic PreferIPv6")
		So(c.MakeDirs(), ShouldBeTrue)
		So(c.PreparedPorts(), ShouldBeEmpty)

		Convey("It serializes with a chosen SOCKS port", func() {
			So(c.Serialize(), ShouldEqual,
				"AvoidDiskWrites 1\r\n"+
					"ControlPort auto\r\n"+
					"SocksPort 9050 IPv6Traffic PreferIPv6\r\n")
			So(c.SocksPort, ShouldEqual, "9050")
			So(c.PreparedPorts(), ShouldResemble, []int{9050})
			addr, e := c.SocksAddr()
			So(e, ShouldBeNil)
			So(addr, ShouldEqual, "127.0.0.1:9050")
		})
	})
}

func TestConfigPorts(t *testing.T) {
	Convey("Port preparation", t, func() {
		fs := newMemFS()
		alloc := &seqAlloc{base: 9000}
		c := newTestConfig(fs, alloc)
		defer c.Close()

		Convey("A literal port without extra slots never allocates", func() {
			c.SocksPort = "9150"
			c.Serialize()
			c.Serialize()
			So(alloc.count(), ShouldEqual, 0)
			So(c.PreparedPorts(), ShouldBeEmpty)
			So(c.String(), ShouldContainSubstring, "SocksPort 9150 IPv6Traffic PreferIPv6\r\n")
		})

		Convey("Ports are resolved once and cached", func() {
			c.PreparePortCount = 2
			rec := newRecorder()
			c.Subscribe(rec.observe, EventPortsPrepared)

			first := c.Serialize()
			So(alloc.count(), ShouldEqual, 3)
			ports := c.PreparedPorts()
			So(ports, ShouldResemble, []int{9000, 9001, 9002})

			So(c.Serialize(), ShouldEqual, first)
			So(alloc.count(), ShouldEqual, 3)

			So(rec.waitFor(EventPortsPrepared, 1, time.Second), ShouldBeTrue)
			So(rec.of(EventPortsPrepared)[0].Ports, ShouldResemble, ports)
		})

		Convey("Extra slots start after the previous port and exclude it", func() {
			c.SocksPort = "9150"
			c.PreparePortCount = 1
			c.Serialize()
			So(alloc.args, ShouldResemble, [][]int{{9000}, {9001, 9000}})
			So(c.SocksPort, ShouldEqual, "9150")
		})

		Convey("An allocator with no ports leaves auto alone", func() {
			alloc.zero = true
			text := c.Serialize()
			So(c.SocksPort, ShouldEqual, PortAuto)
			So(text, ShouldContainSubstring, "SocksPort auto IPv6Traffic PreferIPv6\r\n")
			_, e := c.SocksAddr()
			So(e, ShouldEqual, ErrPortUnresolved)
		})

		Convey("PreparePorts replaces the cached ports", func() {
			c.Serialize()
			So(c.PreparedPorts(), ShouldResemble, []int{9000})
			alloc.base = 9100
			So(c.PreparePorts(), ShouldResemble, []int{9100})
		})
	})
}

func TestConfigSerialize(t *testing.T) {
	Convey("Serialization", t, func() {
		fs := newMemFS()
		c := newTestConfig(fs, &seqAlloc{base: 9000})
		defer c.Close()
		c.SocksPort = "9050"

		Convey("Empty flags do not leave a trailing space", func() {
			c.SocksPortFlags = ""
			c.AvoidDiskWrites = false
			So(c.Serialize(), ShouldEqual, "ControlPort auto\r\nSocksPort 9050\r\n")
		})

		Convey("GeoIP files are only written when present", func() {
			c.GeoIPFile = "/geo/ip"
			c.GeoIPv6File = "/geo/ip6"
			So(c.Serialize(), ShouldNotContainSubstring, "GeoIP")
			fs.put("/geo/ip6", "x")
			text := c.Serialize()
			So(text, ShouldNotContainSubstring, "GeoIPFile ")
			So(text, ShouldContainSubstring, "GeoIPv6File /geo/ip6\r\n")
		})

		Convey("The data directory is created when allowed", func() {
			c.DataDirectory = "/var/tor"
			So(c.Serialize(), ShouldContainSubstring, "DataDirectory /var/tor\r\n")
			So(fs.DirExists("/var/tor"), ShouldBeTrue)
		})

		Convey("A data directory that cannot be created is left out", func() {
			fs.failMkdir = true
			c.DataDirectory = "/var/tor"
			So(c.Serialize(), ShouldNotContainSubstring, "DataDirectory")
		})

		Convey("A missing data directory is left out without makeDirs", func() {
			c.setMakeDirs(false)
			c.DataDirectory = "/var/tor"
			So(c.Serialize(), ShouldNotContainSubstring, "DataDirectory")
			So(fs.DirExists("/var/tor"), ShouldBeFalse)
		})

		Convey("Lines come out in a fixed order", func() {
			c.DataDirectory = "/var/tor"
			c.ControlPort = "9051"
			c.ControlPortFlags = "GroupWritable"
			fs.put("/geo/ip", "x")
			c.GeoIPFile = "/geo/ip"
			c.AddHiddenService("/hs/one").AddPort(80, 8080).AddPortHost(443, 8443, "10.0.0.1")
			c.AddHiddenService("/hs/two").AddPort(22, 2222)
			So(c.Serialize(), ShouldEqual,
				"AvoidDiskWrites 1\r\n"+
					"GeoIPFile /geo/ip\r\n"+
					"DataDirectory /var/tor\r\n"+
					"ControlPort 9051 GroupWritable\r\n"+
					"SocksPort 9050 IPv6Traffic PreferIPv6\r\n"+
					"HiddenServiceDir /hs/one\r\n"+
					"HiddenServicePort 80 8080\r\n"+
					"HiddenServicePort 443 10.0.0.1:8443\r\n"+
					"HiddenServiceDir /hs/two\r\n"+
					"HiddenServicePort 22 2222\r\n")
		})

		Convey("Custom lines are kept but not written", func() {
			So(c.AddCustom("Log notice stdout"), ShouldEqual, 0)
			So(c.AddCustomPair("ExitPolicy", "reject *:*"), ShouldEqual, 1)
			So(c.CustomLines(), ShouldResemble, []string{"Log notice stdout", "ExitPolicy reject *:*"})
			So(c.Serialize(), ShouldNotContainSubstring, "ExitPolicy")
			So(c.RemoveCustomAt(5), ShouldBeFalse)
			So(c.RemoveCustomAt(0), ShouldBeTrue)
			So(c.CustomLines(), ShouldResemble, []string{"ExitPolicy reject *:*"})
		})
	})
}

func TestConfigSocksAddr(t *testing.T) {
	Convey("SocksAddr", t, func() {
		c := newTestConfig(newMemFS(), &seqAlloc{base: 9000})
		defer c.Close()
		for _, p := range []string{"", "0", PortAuto} {
			c.SocksPort = p
			_, e := c.SocksAddr()
			So(e, ShouldEqual, ErrPortUnresolved)
		}
		c.SocksPort = "9150"
		a, e := c.SocksAddr()
		So(e, ShouldBeNil)
		So(a, ShouldEqual, "127.0.0.1:9150")
		c.SocksPort = "10.1.1.1:9150"
		a, _ = c.SocksAddr()
		So(a, ShouldEqual, "10.1.1.1:9150")
	})
}

func TestHiddenService(t *testing.T) {
	Convey("Hidden services", t, func() {
		fs := newMemFS()
		c := newTestConfig(fs, &seqAlloc{base: 9000})
		defer c.Close()

		hs := c.AddHiddenService("/hs/web")
		So(fs.DirExists("/hs/web"), ShouldBeTrue)
		So(hs.Directory(), ShouldEqual, "/hs/web")
		So(hs.Hostname(), ShouldEqual, "")

		So(hs.AddPort(80, 8080), ShouldEqual, hs)
		hs.AddPortHost(443, 8443, "localhost")
		So(hs.Ports(), ShouldResemble, []HiddenServicePort{
			{OnionPort: 80, ServerPort: 8080},
			{OnionPort: 443, ServerPort: 8443, ServerHost: "localhost"},
		})
		So(hs.OnionPorts(), ShouldEqual, "80, 443")
		So(hs.String(), ShouldEqual,
			"HiddenServiceDir /hs/web\r\n"+
				"HiddenServicePort 80 8080\r\n"+
				"HiddenServicePort 443 localhost:8443")

		So(hs.setHostname(""), ShouldBeFalse)
		So(hs.setHostname("a.onion"), ShouldBeTrue)
		So(hs.setHostname("b.onion"), ShouldBeFalse)
		So(hs.Hostname(), ShouldEqual, "a.onion")

		Convey("Without makeDirs the directory is not created", func() {
			c.setMakeDirs(false)
			c.AddHiddenService("/hs/ssh")
			So(fs.DirExists("/hs/ssh"), ShouldBeFalse)
			So(len(c.HiddenServices()), ShouldEqual, 2)
		})
	})
}
