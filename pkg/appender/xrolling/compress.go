package xrolling

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// compressFile 把 src 压缩为 dst，成功后删除 src
//
// 先写临时文件再改名，失败时不会留下半截的归档。
func compressFile(src, dst string, c Compression, level int) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriterSize(out, 64*1024)
	if err = encode(bw, in, filepath.Base(src), c, level); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, dst); err != nil {
		return err
	}
	_ = in.Close()
	return os.Remove(src)
}

func encode(w io.Writer, r io.Reader, name string, c Compression, level int) error {
	switch c {
	case CompressionGzip:
		if level == 0 {
			level = gzip.DefaultCompression
		}
		zw, err := gzip.NewWriterLevel(w, level)
		if err != nil {
			return err
		}
		zw.Name = name
		if _, err := io.Copy(zw, r); err != nil {
			return err
		}
		return zw.Close()
	case CompressionZstd:
		opts := []zstd.EOption{}
		if level > 0 {
			opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		}
		zw, err := zstd.NewWriter(w, opts...)
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, r); err != nil {
			_ = zw.Close()
			return err
		}
		return zw.Close()
	case CompressionZip:
		zw := zip.NewWriter(w)
		fw, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := io.Copy(fw, r); err != nil {
			return err
		}
		return zw.Close()
	default:
		return fmt.Errorf("xrolling: unsupported compression %s", c)
	}
}
