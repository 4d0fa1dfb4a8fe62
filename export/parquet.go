package export

import (
	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"
)

type sampleRow struct {
	RecordIndex int64   `parquet:"name=record_index, type=INT64"`
	TSUTCISO    string  `parquet:"name=ts_utc_iso, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ElapsedS    float64 `parquet:"name=elapsed_s, type=DOUBLE"`
	CadenceRPM  float64 `parquet:"name=cadence_rpm, type=DOUBLE"`
	PowerW      float64 `parquet:"name=power_w, type=DOUBLE"`
	HRBPM       float64 `parquet:"name=hr_bpm, type=DOUBLE"`
}

func writeParquet(path string, samples []Sample) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	if err := writeRows(fw, samples); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

// MarshalParquet encodes samples as an in-memory parquet file.
func MarshalParquet(samples []Sample) ([]byte, error) {
	fw := parquetbuffer.NewBufferFile()
	if err := writeRows(fw, samples); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func writeRows(fw source.ParquetFile, samples []Sample) error {
	pw, err := writer.NewParquetWriter(fw, new(sampleRow), 4)
	if err != nil {
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for _, s := range samples {
		row := sampleRow{
			RecordIndex: int64(s.RecordIndex),
			TSUTCISO:    s.TSUTCISO,
			ElapsedS:    s.ElapsedS,
			CadenceRPM:  valueOrNaN(s.CadenceRPM),
			PowerW:      valueOrNaN(s.PowerW),
			HRBPM:       valueOrNaN(s.HRBPM),
		}
		if err := pw.Write(row); err != nil {
			_ = pw.WriteStop()
			return err
		}
	}
	return pw.WriteStop()
}
