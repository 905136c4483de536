package protocol

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/uincore/opendmtp-sub000/internal/codec"
	"github.com/uincore/opendmtp-sub000/pkg/dmtp/wire"
)

// uploadTimeoutSeconds is how long a started upload may sit idle before
// the main loop's housekeeping abandons it.
const uploadTimeoutSeconds = 120

// Upload sub-commands, the first payload byte of a PktServerFileUpload.
const (
	uploadBegin = 0x01 // [size_u24][name bytes]
	uploadData  = 0x02 // [offset_u24][data bytes]
	uploadEnd   = 0x03
)

// uploadState tracks one in-flight server-to-client file transfer.
type uploadState struct {
	active       bool
	name         string
	size         int
	data         []byte
	lastActivity int64
}

// EnableUpload turns on server file uploads, writing received files
// into dir. Disabled by default.
func (d *Driver) EnableUpload(dir string) {
	d.uploadDir = dir
}

// applyUpload handles one PktServerFileUpload packet. Uploads arrive as
// a begin record, data chunks at explicit offsets, and an end marker
// that commits the file to disk.
func (d *Driver) applyUpload(payload []byte) error {
	if d.uploadDir == "" {
		return &Error{Code: wire.ErrorUploadType, Err: fmt.Errorf("uploads not enabled")}
	}
	if len(payload) < 1 {
		return &Error{Code: wire.ErrorUploadLength, Err: errShortPayload}
	}
	now := d.Now()
	switch payload[0] {
	case uploadBegin:
		if len(payload) < 5 {
			return &Error{Code: wire.ErrorUploadLength, Err: errShortPayload}
		}
		size := int(codec.ReadUint24BE(payload[1:4]))
		name := filepath.Base(string(payload[4:]))
		d.upload = uploadState{active: true, name: name, size: size, data: make([]byte, size), lastActivity: now}
		return nil
	case uploadData:
		if !d.upload.active {
			return &Error{Code: wire.ErrorUploadExtra, Err: fmt.Errorf("data chunk with no upload in progress")}
		}
		if len(payload) < 4 {
			return &Error{Code: wire.ErrorUploadLength, Err: errShortPayload}
		}
		offset := int(codec.ReadUint24BE(payload[1:4]))
		chunk := payload[4:]
		if offset+len(chunk) > d.upload.size {
			d.upload = uploadState{}
			return &Error{Code: wire.ErrorUploadLength, Err: fmt.Errorf("chunk past declared size")}
		}
		copy(d.upload.data[offset:], chunk)
		d.upload.lastActivity = now
		return nil
	case uploadEnd:
		if !d.upload.active {
			return &Error{Code: wire.ErrorUploadExtra, Err: fmt.Errorf("end with no upload in progress")}
		}
		path := filepath.Join(d.uploadDir, d.upload.name)
		err := os.WriteFile(path, d.upload.data, 0o644)
		d.upload = uploadState{}
		if err != nil {
			return &Error{Code: wire.ErrorUploadExtra, Err: err}
		}
		log.Info("upload complete", "path", path)
		return nil
	default:
		return &Error{Code: wire.ErrorUploadType, Err: fmt.Errorf("unknown upload sub-command 0x%02X", payload[0])}
	}
}

// CheckUploadTimeout abandons an idle in-flight upload; the main loop
// calls this from housekeeping.
func (d *Driver) CheckUploadTimeout(now int64) {
	if d.upload.active && now-d.upload.lastActivity > uploadTimeoutSeconds {
		log.Warn("upload timed out", "name", d.upload.name)
		d.upload = uploadState{}
	}
}
