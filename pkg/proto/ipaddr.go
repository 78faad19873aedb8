//
//  Copyright 2023 PayPal Inc.
//
//  Licensed to the Apache Software Foundation (ASF) under one or more
//  contributor license agreements.  See the NOTICE file distributed with
//  this work for additional information regarding copyright ownership.
//  The ASF licenses this file to You under the Apache License, Version 2.0
//  (the "License"); you may not use this file except in compliance with
//  the License.  You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.
//

package proto

import (
	"net"
	"strconv"
	"strings"

	uuid "github.com/satori/go.uuid"
)

// IPAddress is always stored as 16 bytes. IPv4 addresses are IPv4-mapped
// (::ffff:a.b.c.d). The IPv4+MAC form replaces the first byte with 0xFF and
// stores a 48-bit MAC in bytes 4..9 to make origin addresses behind NAT unique.
type IPAddress [16]byte

var (
	ipv4MappedPrefix = [12]byte{10: 0xFF, 11: 0xFF}
	ipv4MACPrefix    = [4]byte{0xFF, 0, 0, 0}

	NullIPAddress = IPAddress{10: 0xFF, 11: 0xFF}
)

func IPAddressFromIP(ip net.IP) (a IPAddress) {
	if ip4 := ip.To4(); ip4 != nil {
		copy(a[:], ipv4MappedPrefix[:])
		copy(a[12:], ip4)
		return
	}
	if len(ip) == net.IPv6len {
		copy(a[:], ip)
		return
	}
	return NullIPAddress
}

func (a IPAddress) IsIPv4Mapped() bool {
	for i := range ipv4MappedPrefix {
		if a[i] != ipv4MappedPrefix[i] {
			return false
		}
	}
	return true
}

func (a IPAddress) IsIPv4MAC() bool {
	for i := range ipv4MACPrefix {
		if a[i] != ipv4MACPrefix[i] {
			return false
		}
	}
	return true
}

func (a IPAddress) IsNull() bool {
	return a == NullIPAddress || a == IPAddress{}
}

// IP returns the 4-byte address for IPv4-mapped and IPv4+MAC addresses and the
// 16-byte address otherwise.
func (a IPAddress) IP() net.IP {
	if a.IsIPv4Mapped() || a.IsIPv4MAC() {
		return net.IPv4(a[12], a[13], a[14], a[15]).To4()
	}
	ip := make(net.IP, net.IPv6len)
	copy(ip, a[:])
	return ip
}

// MAC returns the embedded MAC address, or nil if a is not an IPv4+MAC address.
func (a IPAddress) MAC() net.HardwareAddr {
	if !a.IsIPv4MAC() {
		return nil
	}
	mac := make(net.HardwareAddr, 6)
	copy(mac, a[4:10])
	return mac
}

// WithMAC embeds mac into an IPv4 address.
func (a IPAddress) WithMAC(mac []byte) (IPAddress, error) {
	if len(mac) != 6 || !(a.IsIPv4Mapped() || a.IsIPv4MAC()) {
		return a, ErrInvalidIPAddress
	}
	a[0] = 0xFF
	copy(a[4:10], mac)
	return a, nil
}

func (a IPAddress) String() string {
	var b strings.Builder
	switch {
	case a.IsIPv4Mapped():
		a.writeIPv4(&b)
	case a.IsIPv4MAC():
		a.writeIPv4(&b)
		b.WriteByte('(')
		for i := 4; i < 10; i++ {
			if i != 4 {
				b.WriteByte(':')
			}
			b.WriteString(strconv.FormatUint(uint64(a[i]), 16))
		}
		b.WriteByte(')')
	default:
		for i := 0; i < 16; i += 2 {
			if i != 0 {
				b.WriteByte(':')
			}
			b.WriteString(strconv.FormatUint(uint64(EncByteOrder.Uint16(a[i:])), 16))
		}
	}
	return b.String()
}

func (a IPAddress) writeIPv4(b *strings.Builder) {
	for i := 12; i < 16; i++ {
		if i != 12 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(int(a[i])))
	}
}

// ParseIPAddress parses the forms produced by IPAddress.String.
func ParseIPAddress(s string) (a IPAddress, err error) {
	var mac []byte
	if i := strings.IndexByte(s, '('); i >= 0 {
		if !strings.HasSuffix(s, ")") {
			err = ErrInvalidIPAddress
			return
		}
		parts := strings.Split(s[i+1:len(s)-1], ":")
		if len(parts) != 6 {
			err = ErrInvalidIPAddress
			return
		}
		mac = make([]byte, 6)
		for k, p := range parts {
			var v uint64
			if v, err = strconv.ParseUint(p, 16, 8); err != nil {
				err = ErrInvalidIPAddress
				return
			}
			mac[k] = byte(v)
		}
		s = s[:i]
	}

	if strings.IndexByte(s, ':') >= 0 {
		if mac != nil {
			err = ErrInvalidIPAddress
			return
		}
		groups := strings.Split(s, ":")
		if len(groups) != 8 {
			err = ErrInvalidIPAddress
			return
		}
		for k, g := range groups {
			var v uint64
			if v, err = strconv.ParseUint(g, 16, 16); err != nil {
				err = ErrInvalidIPAddress
				return
			}
			EncByteOrder.PutUint16(a[2*k:], uint16(v))
		}
		return
	}

	ip := net.ParseIP(s).To4()
	if ip == nil {
		err = ErrInvalidIPAddress
		return
	}
	a = IPAddressFromIP(ip)
	if mac != nil {
		a, err = a.WithMAC(mac)
	}
	return
}

// RandomMAC returns a pseudo MAC address. The high bit of the first byte is
// set so it cannot collide with a vendor-assigned address.
func RandomMAC() []byte {
	u := uuid.NewV4()
	mac := make([]byte, 6)
	copy(mac, u[10:16])
	mac[0] |= 0x80
	return mac
}
