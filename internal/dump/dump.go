// Dumper runs one goroutine per submitted Job, writing the dump-file
// preamble plus raw PE bytes to a temp file and renaming it into place on
// success. Grounded on dump_pe_thread's fwrite-then-rename sequence in
// original_source/pe_dump/pe_dump.c and on the temp-name/write/rename
// idiom in DynamEq6388-netcap/decoder/stream/saveFile.go.
package dump

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dreadl0ck/cryptoutils"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/tph5595/amico/internal/gapcheck"
	"github.com/tph5595/amico/internal/httpscan"
	"github.com/tph5595/amico/internal/stats"
)

const tmpSuffix = ".tmp"

// corruptMarker is the literal text written on the preamble's sixth line
// when a dump is flagged corrupt, matching CORRUPT_PE_ALERT.
const corruptMarker = "CORRUPT_PE"

// Dumper writes Jobs to dumpDir, optionally prefixed with a nic name
// segment (empty when running against an offline capture file, matching
// nic_name == NULL in the original).
type Dumper struct {
	dumpDir string
	nic     string
	log     *zap.Logger
	stats   *stats.Counters

	wg sync.WaitGroup
}

// New builds a Dumper. nic may be empty.
func New(dumpDir, nic string, log *zap.Logger, counters *stats.Counters) *Dumper {
	return &Dumper{dumpDir: dumpDir, nic: nic, log: log, stats: counters}
}

// Submit starts a goroutine that writes job to disk and returns
// immediately; callers never block on disk I/O, matching spec.md §5's
// concurrency model.
func (d *Dumper) Submit(job Job) {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		d.write(job)
	}()
}

// Wait blocks until every submitted dump has finished, used at shutdown
// so an in-flight PE buffer is not lost.
func (d *Dumper) Wait() {
	d.wg.Wait()
}

func (d *Dumper) write(job Job) {
	if len(job.Payload) == 0 {
		return
	}

	fname := d.fileName(job.FileName)
	tmpName := fname + tmpSuffix

	log := d.log.With(zap.String("file", fname))

	corrupt := job.CorruptPE
	contentLen := httpscan.ContentLength(job.Payload)
	hdrLen := httpscan.RespHeaderLength(job.Payload)

	if contentLen <= 0 || hdrLen <= 0 {
		corrupt = true
	}

	if contentLen+hdrLen > len(job.Payload) {
		corrupt = true
	}

	if gapcheck.Missing(job.SeqList, contentLen) {
		corrupt = true
	}

	if err := d.writeFile(tmpName, job, corrupt); err != nil {
		log.Error("failed to write dump file", zap.Error(err))
		return
	}

	if err := os.Rename(tmpName, fname); err != nil {
		log.Error("failed to rename dump file into place", zap.Error(errors.Wrap(err, "rename")))
		return
	}

	if d.stats != nil {
		d.stats.IncDump(corrupt)
	}

	digest := hex.EncodeToString(cryptoutils.MD5Data(job.Payload))
	log.Info("dumped PE file",
		zap.Bool("corrupt", corrupt),
		zap.Int("size", len(job.Payload)),
		zap.String("md5", digest),
	)
}

func (d *Dumper) fileName(base string) string {
	name := base
	if d.nic != "" {
		name = d.nic + "~" + base
	}

	return filepath.Join(d.dumpDir, name)
}

// writeFile renders the six-line "% "-prefixed preamble followed by a
// blank line and the raw payload bytes, matching dump_pe_thread exactly.
func (d *Dumper) writeFile(path string, job Job, corrupt bool) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create temp dump file")
	}
	defer f.Close()

	lines := []string{
		fmt.Sprintf("%d", time.Now().Unix()),
		job.FileName,
		job.URL,
		job.Host,
		job.Referer,
	}

	for _, line := range lines {
		if _, err := fmt.Fprintf(f, "%% %s\n", line); err != nil {
			return errors.Wrap(err, "write preamble line")
		}
	}

	marker := ""
	if corrupt {
		marker = corruptMarker
	}

	if _, err := fmt.Fprintf(f, "%% %s\n", marker); err != nil {
		return errors.Wrap(err, "write corruption marker line")
	}

	if _, err := f.Write([]byte("\n")); err != nil {
		return errors.Wrap(err, "write preamble terminator")
	}

	if _, err := f.Write(job.Payload); err != nil {
		return errors.Wrap(err, "write payload")
	}

	return nil
}
