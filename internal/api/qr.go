package api

import (
	qrcode "github.com/skip2/go-qrcode"
)

// ControlQR renders url as a terminal-printable QR code so a phone on the
// same network can open the control API.
func ControlQR(url string) (string, error) {
	q, err := qrcode.New(url, qrcode.Medium)
	if err != nil {
		return "", err
	}
	return q.ToSmallString(false), nil
}
