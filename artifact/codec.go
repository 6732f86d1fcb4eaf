package artifact

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/edsrzf/mmap-go"
	"github.com/klauspost/compress/zstd"

	"web/resalegeo/cluster"
)

const clusterColumn = "cluster"

// AssignmentRow maps one reference point to its cluster.
type AssignmentRow struct {
	PointID   string
	ClusterID int
	Lat, Lon  float64
}

// Assignments flattens a clustering result into rows.
func Assignments(res *cluster.Result) []AssignmentRow {
	rows := make([]AssignmentRow, len(res.Points))
	for i, p := range res.Points {
		rows[i] = AssignmentRow{
			PointID:   p.ID,
			ClusterID: res.Assignment.Labels[i],
			Lat:       p.Lat,
			Lon:       p.Lon,
		}
	}
	return rows
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteSummary writes the cluster id, centroid and attribute columns.
func WriteSummary(w io.Writer, t *cluster.SummaryTable) error {
	cw := csv.NewWriter(w)
	header := append([]string{clusterColumn, t.LatColumn, t.LonColumn}, t.Columns...)
	if err := cw.Write(header); err != nil {
		return err
	}

	cells := make([]string, len(header))
	for _, r := range t.Rows {
		cells[0] = strconv.Itoa(r.ClusterID)
		cells[1] = formatFloat(r.Lat)
		cells[2] = formatFloat(r.Lon)
		for i, c := range t.Columns {
			cells[3+i] = formatFloat(r.Values[c])
		}
		if err := cw.Write(cells); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSummary parses a table written by WriteSummary. Empty attribute cells
// read as 0.
func ReadSummary(r io.Reader, entity string) (*cluster.SummaryTable, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("summary header: %w", err)
	}
	if len(header) < 3 || header[0] != clusterColumn {
		return nil, fmt.Errorf("summary header %v: want cluster, lat, lon first", header)
	}

	t := &cluster.SummaryTable{
		Entity:    entity,
		LatColumn: header[1],
		LonColumn: header[2],
		Columns:   append([]string(nil), header[3:]...),
	}

	for line := 2; ; line++ {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("summary line %d: %w", line, err)
		}

		id, err := strconv.Atoi(cells[0])
		if err != nil {
			return nil, fmt.Errorf("summary line %d: cluster id: %w", line, err)
		}
		lat, errLat := strconv.ParseFloat(cells[1], 64)
		lon, errLon := strconv.ParseFloat(cells[2], 64)
		if errLat != nil || errLon != nil {
			return nil, fmt.Errorf("summary line %d: bad centroid %q,%q", line, cells[1], cells[2])
		}

		row := cluster.SummaryRow{ClusterID: id, Lat: lat, Lon: lon, Values: make(map[string]float64, len(t.Columns))}
		for i, c := range t.Columns {
			if cells[3+i] == "" {
				row.Values[c] = 0
				continue
			}
			v, err := strconv.ParseFloat(cells[3+i], 64)
			if err != nil {
				return nil, fmt.Errorf("summary line %d: %s: %w", line, c, err)
			}
			row.Values[c] = v
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

func WriteAssignments(w io.Writer, rows []AssignmentRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"point_id", clusterColumn, "latitude", "longitude"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.PointID, strconv.Itoa(r.ClusterID), formatFloat(r.Lat), formatFloat(r.Lon)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ReadAssignments(r io.Reader) ([]AssignmentRow, error) {
	cr := csv.NewReader(r)
	if _, err := cr.Read(); err != nil {
		return nil, fmt.Errorf("assignments header: %w", err)
	}

	var rows []AssignmentRow
	for line := 2; ; line++ {
		cells, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("assignments line %d: %w", line, err)
		}
		id, err := strconv.Atoi(cells[1])
		if err != nil {
			return nil, fmt.Errorf("assignments line %d: %w", line, err)
		}
		lat, _ := strconv.ParseFloat(cells[2], 64)
		lon, _ := strconv.ParseFloat(cells[3], 64)
		rows = append(rows, AssignmentRow{PointID: cells[0], ClusterID: id, Lat: lat, Lon: lon})
	}
	return rows, nil
}

// writeFile streams write into path, through zstd when compressed.
func writeFile(path string, compressed bool, write func(io.Writer) error) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	buf := bufio.NewWriterSize(file, 1024*1024)
	var w io.Writer = buf

	var enc *zstd.Encoder
	if compressed {
		enc, err = zstd.NewWriter(buf, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = enc
	}

	if err := write(w); err != nil {
		if enc != nil {
			enc.Close()
		}
		return err
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to close encoder: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %w", err)
	}
	return file.Sync()
}

// readFile hands read a reader over path. Compressed files are streamed
// through zstd; plain files are mapped read-only.
func readFile(path string, read func(io.Reader) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := ParseFileName(path)
	if err == nil && info.Compressed {
		dec, err := zstd.NewReader(file)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer dec.Close()
		return read(dec)
	}

	stat, err := file.Stat()
	if err != nil {
		return err
	}
	if stat.Size() == 0 {
		return read(bytes.NewReader(nil))
	}

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %w", err)
	}
	defer data.Unmap()

	return read(bytes.NewReader(data))
}
