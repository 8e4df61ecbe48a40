package relay

import (
	"bufio"
	"io"
)

// readLine consumes one newline-terminated record. A partial record at
// EOF is still returned; EOF with no data surfaces as an error.
func readLine(r io.Reader) ([]byte, error) {
	line, err := bufio.NewReader(r).ReadBytes('\n')
	if len(line) > 0 {
		return line, nil
	}
	if err != nil {
		return nil, err
	}
	return nil, io.EOF
}
