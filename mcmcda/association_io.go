package mcmcda

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Text format of an association: one line per track, one column per frame separated by spaces.
// A column holds the index of the detection in its frame, -1 when the track skips the frame,
// or several comma separated indices when the track has duplicates there.
// Empty lines and lines starting with '#' are ignored.

// Write writes association in text format
func (w *Association[D]) Write(out io.Writer) error {
	buf := bufio.NewWriter(out)
	T := w.data.Size()
	for _, track := range w.tracks {
		for t := 1; t <= T; t++ {
			if t > 1 {
				buf.WriteString("  ")
			}
			at := track.entries[track.lowerBound(t):track.upperBound(t)]
			if len(at) == 0 {
				buf.WriteString("-1")
				continue
			}
			for i, ref := range at {
				if i > 0 {
					buf.WriteByte(',')
				}
				buf.WriteString(strconv.Itoa(ref.Index))
			}
		}
		buf.WriteByte('\n')
	}
	return errors.Wrap(buf.Flush(), "can't write association")
}

// WriteFile writes association in text format to the file
func (w *Association[D]) WriteFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "can't create file '%s'", filename)
	}
	err = w.Write(file)
	if err != nil {
		file.Close()
		return err
	}
	return errors.Wrapf(file.Close(), "can't close file '%s'", filename)
}

// ReadAssociation reads association in text format over given data
func ReadAssociation[D any](in io.Reader, data *Data[D]) (*Association[D], error) {
	w := NewAssociation(data)
	used := make(map[RefKey]struct{})
	scanner := bufio.NewScanner(in)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		columns := strings.Fields(line)
		if len(columns) != data.Size() {
			return nil, errors.Wrapf(ErrMalformedAssociation, "line %d: expected %d frames, got %d", lineNo, data.Size(), len(columns))
		}
		track := NewTrack[D]()
		for t := 1; t <= len(columns); t++ {
			for i, field := range strings.Split(columns[t-1], ",") {
				idx, err := strconv.Atoi(field)
				if err != nil {
					return nil, errors.Wrapf(ErrMalformedAssociation, "line %d, frame %d: %v", lineNo, t, err)
				}
				if idx == -1 && i == 0 {
					continue
				}
				if idx < 0 || idx >= data.NumDetections(t) {
					return nil, errors.Wrapf(ErrMalformedAssociation, "line %d, frame %d: bad index %d", lineNo, t, idx)
				}
				ref := data.Ref(t, idx)
				if _, ok := used[ref.Key()]; ok {
					return nil, errors.Wrapf(ErrMalformedAssociation, "line %d, frame %d: detection %d used twice", lineNo, t, idx)
				}
				used[ref.Key()] = struct{}{}
				track.Insert(ref)
			}
		}
		if track.Empty() {
			return nil, errors.Wrapf(ErrMalformedAssociation, "line %d: empty track", lineNo)
		}
		w.Insert(track)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "can't read association")
	}
	return w, nil
}

// ReadAssociationFile reads association in text format from the file
func ReadAssociationFile[D any](filename string, data *Data[D]) (*Association[D], error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open file '%s'", filename)
	}
	defer file.Close()
	return ReadAssociation(file, data)
}
