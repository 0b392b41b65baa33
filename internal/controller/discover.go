package controller

// Joy-Con discovery from /proc/bus/input/devices.
//
// hid-nintendo registers two input devices per Joy-Con: the controller
// itself and a twin whose name ends in " IMU". Both carry the Bluetooth
// address in the Uniq field, which is what pairs them up and what we use as
// the serial.

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	nintendoVendorID = 0x057e
	leftProductID    = 0x2006
	rightProductID   = 0x2007
)

const procInputDevices = "/proc/bus/input/devices"

var (
	ErrNotFound    = errors.New("controller: device not found")
	ErrUnsupported = errors.New("controller: joy-con input is only supported on linux")
)

type procDevice struct {
	name     string
	uniq     string
	vendor   uint16
	product  uint16
	handlers []string
}

func (d procDevice) eventPath() string {
	for _, h := range d.handlers {
		if strings.HasPrefix(h, "event") {
			return "/dev/input/" + h
		}
	}
	return ""
}

func parseProcDevices(r io.Reader) []procDevice {
	var (
		out []procDevice
		cur procDevice
	)
	flush := func() {
		if cur.name != "" || len(cur.handlers) > 0 {
			out = append(out, cur)
		}
		cur = procDevice{}
	}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
			flush()
		case strings.HasPrefix(line, "N: Name="):
			cur.name = strings.Trim(strings.TrimPrefix(line, "N: Name="), " \"")
		case strings.HasPrefix(line, "U: Uniq="):
			cur.uniq = strings.TrimSpace(strings.TrimPrefix(line, "U: Uniq="))
		case strings.HasPrefix(line, "H: Handlers="):
			cur.handlers = strings.Fields(strings.TrimPrefix(line, "H: Handlers="))
		case strings.HasPrefix(line, "I: "):
			for _, f := range strings.Fields(strings.TrimPrefix(line, "I: ")) {
				k, v, ok := strings.Cut(f, "=")
				if !ok {
					continue
				}
				n, err := strconv.ParseUint(v, 16, 16)
				if err != nil {
					continue
				}
				switch k {
				case "Vendor":
					cur.vendor = uint16(n)
				case "Product":
					cur.product = uint16(n)
				}
			}
		}
	}
	flush()
	return out
}

// joyconsFrom pairs each Joy-Con with its IMU twin. Devices without an IMU
// node are skipped since they cannot stream motion.
func joyconsFrom(devices []procDevice) []DeviceInfo {
	imus := map[string]string{}
	for _, d := range devices {
		if d.vendor != nintendoVendorID || !strings.HasSuffix(d.name, " IMU") {
			continue
		}
		if p := d.eventPath(); p != "" && d.uniq != "" {
			imus[strings.ToLower(d.uniq)] = p
		}
	}

	var out []DeviceInfo
	for _, d := range devices {
		if d.vendor != nintendoVendorID || strings.HasSuffix(d.name, " IMU") {
			continue
		}
		if d.product != leftProductID && d.product != rightProductID {
			continue
		}
		path := d.eventPath()
		imu := imus[strings.ToLower(d.uniq)]
		if path == "" || imu == "" {
			continue
		}
		out = append(out, DeviceInfo{
			Path:      path,
			IMUPath:   imu,
			VendorID:  d.vendor,
			ProductID: d.product,
			Serial:    d.uniq,
			Name:      d.name,
			IsLeft:    d.product == leftProductID,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Serial < out[j].Serial })
	return out
}

func discoverProc() ([]DeviceInfo, error) {
	f, err := os.Open(procInputDevices)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return joyconsFrom(parseProcDevices(f)), nil
}

// System is the Devices implementation backed by the local input subsystem.
type System struct{}

func (System) Discover() ([]DeviceInfo, error) {
	return discoverProc()
}
