package compressor

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestGzipCompressor(t *testing.T) {
	Convey("Given a GzipCompressor", t, func() {
		compressor := NewGzip()
		dir := t.TempDir()

		Convey("Compress method", func() {
			Convey("When compressing a SQL dump", func() {
				dump := []byte(strings.Repeat("INSERT INTO t VALUES (1, 'x');\n", 2000))
				src := filepath.Join(dir, "dump.sql")
				So(os.WriteFile(src, dump, 0o644), ShouldBeNil)
				dst := src + ".gz"

				err := compressor.Compress(src, dst)
				So(err, ShouldBeNil)

				Convey("The output is a standard gzip stream", func() {
					f, err := os.Open(dst)
					So(err, ShouldBeNil)
					defer f.Close()

					r, err := gzip.NewReader(f)
					So(err, ShouldBeNil)
					defer r.Close()

					var out bytes.Buffer
					_, err = out.ReadFrom(r)
					So(err, ShouldBeNil)
					So(out.Bytes(), ShouldResemble, dump)
				})

				Convey("The output is smaller than the input", func() {
					info, err := os.Stat(dst)
					So(err, ShouldBeNil)
					So(info.Size(), ShouldBeLessThan, int64(len(dump)))
				})
			})

			Convey("When the source file does not exist", func() {
				err := compressor.Compress(filepath.Join(dir, "missing.sql"), filepath.Join(dir, "out.gz"))
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to open source file")
			})

			Convey("When the destination directory does not exist", func() {
				src := filepath.Join(dir, "dump.sql")
				So(os.WriteFile(src, []byte("x"), 0o644), ShouldBeNil)

				err := compressor.Compress(src, filepath.Join(dir, "nope", "out.gz"))
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to create dest file")
			})
		})

		Convey("Decompress method", func() {
			Convey("When round-tripping through Compress", func() {
				content := []byte("CREATE TABLE a (id INTEGER);\n")
				src := filepath.Join(dir, "a.sql")
				So(os.WriteFile(src, content, 0o644), ShouldBeNil)
				So(compressor.Compress(src, src+".gz"), ShouldBeNil)

				restored := filepath.Join(dir, "restored.sql")
				So(compressor.Decompress(src+".gz", restored), ShouldBeNil)

				got, err := os.ReadFile(restored)
				So(err, ShouldBeNil)
				So(got, ShouldResemble, content)
			})

			Convey("When the source is not gzip", func() {
				src := filepath.Join(dir, "plain.sql")
				So(os.WriteFile(src, []byte("not a gzip file"), 0o644), ShouldBeNil)

				err := compressor.Decompress(src, filepath.Join(dir, "out.sql"))
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to create gzip reader")
			})

			Convey("When the source file does not exist", func() {
				err := compressor.Decompress(filepath.Join(dir, "missing.gz"), filepath.Join(dir, "out.sql"))
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to open source file")
			})
		})
	})
}
