// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtimectx

import (
	"bufio"
	"bytes"
	"io"
	"log"
)

// LogCapture returns an io.WriteCloser that pipes lines written to it
// through the standard logger, prefixed with a tab, for capturing the
// stdout/stderr of an external helper (e.g. a realignGaps=project
// subprocess) into the pipeline's own log stream.
func LogCapture() io.WriteCloser {
	r, w := io.Pipe()
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			if len(bytes.TrimSpace(sc.Bytes())) == 0 {
				continue
			}
			log.Printf("\t%s", sc.Bytes())
		}
		if err := sc.Err(); err != nil && err != io.EOF {
			_ = w.CloseWithError(err)
		}
	}()
	return w
}
