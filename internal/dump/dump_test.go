package dump

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/tph5595/amico/internal/seqlist"
)

func newTestDumper(t *testing.T, nic string) (*Dumper, string) {
	t.Helper()

	dir := t.TempDir()
	d := New(dir, nic, zap.NewNop(), nil)

	return d, dir
}

func samplePayload() []byte {
	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 200 OK\r\n")
	buf.WriteString("Content-Length: 6\r\n")
	buf.WriteString("\r\n")
	buf.WriteString("MZabcd")

	return buf.Bytes()
}

func TestWriteProducesExpectedPreamble(t *testing.T) {
	d, dir := newTestDumper(t, "")
	payload := samplePayload()

	l := seqlist.New()
	l.Insert(0, uint32(len(payload)))

	job := Job{
		FileName: "10.0.0.1:1234-93.184.216.34:80-1",
		URL:      "GET /a.exe HTTP/1.1",
		Host:     "example.com",
		Referer:  "http://example.com/",
		Payload:  payload,
		SeqList:  l,
	}

	d.Submit(job)
	d.Wait()

	path := filepath.Join(dir, job.FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected dump file to exist: %v", err)
	}

	lines := strings.SplitN(string(data), "\n", 8)
	if len(lines) < 8 {
		t.Fatalf("expected at least 8 pieces (6 preamble + blank line + body), got %d: %q", len(lines), data)
	}

	if !strings.HasPrefix(lines[0], "% ") {
		t.Errorf("expected first line to be a timestamp preamble line, got %q", lines[0])
	}

	if lines[1] != "% "+job.FileName {
		t.Errorf("unexpected filename line: %q", lines[1])
	}

	if lines[2] != "% "+job.URL {
		t.Errorf("unexpected URL line: %q", lines[2])
	}

	if lines[3] != "% "+job.Host {
		t.Errorf("unexpected host line: %q", lines[3])
	}

	if lines[4] != "% "+job.Referer {
		t.Errorf("unexpected referer line: %q", lines[4])
	}

	if lines[5] != "% " {
		t.Errorf("expected an uncorrupted dump to have an empty marker line, got %q", lines[5])
	}

	if lines[6] != "" {
		t.Errorf("expected a blank line before the payload, got %q", lines[6])
	}

	if !bytes.Contains(data, payload) {
		t.Error("expected the raw payload to be present in the dump file")
	}

	if _, err := os.Stat(path + tmpSuffix); !os.IsNotExist(err) {
		t.Error("expected the .tmp file to be renamed away")
	}
}

func TestWriteMarksCorruptOnMissingData(t *testing.T) {
	d, dir := newTestDumper(t, "")
	payload := samplePayload()

	l := seqlist.New()
	l.Insert(0, 10)
	l.Insert(20, uint32(len(payload)-20)) // bytes 10..20 never seen: leaves a gap

	job := Job{
		FileName: "flow-2",
		Payload:  payload,
		SeqList:  l,
	}

	d.Submit(job)
	d.Wait()

	data, err := os.ReadFile(filepath.Join(dir, job.FileName))
	if err != nil {
		t.Fatalf("expected dump file to exist: %v", err)
	}

	if !strings.Contains(string(data), "% "+corruptMarker+"\n") {
		t.Errorf("expected corruption marker in output: %q", data)
	}
}

func TestFileNameIncludesNicSegment(t *testing.T) {
	d, dir := newTestDumper(t, "eth0")

	job := Job{
		FileName: "flow-3",
		Payload:  samplePayload(),
		SeqList:  seqlist.New(),
	}
	job.SeqList.Insert(0, uint32(len(job.Payload)))

	d.Submit(job)
	d.Wait()

	if _, err := os.Stat(filepath.Join(dir, "eth0~flow-3")); err != nil {
		t.Errorf("expected nic-prefixed filename: %v", err)
	}
}

func TestEmptyPayloadIsNotWritten(t *testing.T) {
	d, dir := newTestDumper(t, "")

	d.Submit(Job{FileName: "flow-4", Payload: nil})
	d.Wait()

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	if len(entries) != 0 {
		t.Errorf("expected no files written for an empty payload, got %v", entries)
	}
}
