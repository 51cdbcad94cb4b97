package uds

import (
	"bufio"

	"github.com/bytedance/sonic"
)

// Notice announces that an app wrote its Register frame and where the master
// should start reading its public segment.
type Notice struct {
	Mode         int32  `json:"mode"`
	Category     int32  `json:"category"`
	Group        string `json:"group"`
	Name         string `json:"name"`
	UID          uint32 `json:"uid"`
	PID          int32  `json:"pid"`
	RegisterTime int64  `json:"register_time"`
}

const ackLine = "ok\n"

func writeNotice(w *bufio.Writer, n Notice) error {
	data, err := sonic.ConfigStd.Marshal(n)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

func readNotice(r *bufio.Reader) (Notice, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return Notice{}, err
	}
	var n Notice
	if err := sonic.ConfigStd.Unmarshal(line, &n); err != nil {
		return Notice{}, err
	}
	return n, nil
}
