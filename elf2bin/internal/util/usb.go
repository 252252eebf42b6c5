// Copyright 2025 The Embedded Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package util

import (
	"errors"
	"strconv"
	"strings"

	usb "github.com/google/gousb"
)

// USBID identifies a USB device model.
type USBID struct {
	Vendor, Product usb.ID
}

func (id USBID) String() string {
	return id.Vendor.String() + ":" + id.Product.String()
}

func parseBusAddr(busAddr string) (int, int) {
	s := strings.Split(busAddr, ":")
	if len(s) != 2 {
		return -1, -1
	}
	bus, err := strconv.ParseUint(s[0], 10, 8)
	if err != nil {
		return -1, -1
	}
	dev, err := strconv.ParseUint(s[1], 10, 8)
	if err != nil {
		return -1, -1
	}
	return int(bus), int(dev)
}

// OpenUSB opens all devices that match one of ids. If busAddr is not empty
// only the device at BUS:ADDR is considered.
func OpenUSB(ids []USBID, busAddr string) (ctx *usb.Context, devs []*usb.Device, err error) {
	bus, addr := parseBusAddr(busAddr)
	if busAddr != "" && bus < 0 {
		err = errors.New("bad USB device address: " + busAddr)
		return
	}
	ctx = usb.NewContext()
	devs, err = ctx.OpenDevices(func(desc *usb.DeviceDesc) bool {
		if bus >= 0 && (desc.Bus != bus || desc.Address != addr) {
			return false
		}
		return matchID(ids, desc.Vendor, desc.Product)
	})
	if err != nil {
		for _, d := range devs {
			d.Close()
		}
		ctx.Close()
	}
	return
}

func matchID(ids []USBID, vendor, product usb.ID) bool {
	for _, id := range ids {
		if id.Vendor == vendor && id.Product == product {
			return true
		}
	}
	return false
}
