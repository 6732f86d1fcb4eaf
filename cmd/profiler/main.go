package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"strconv"
	"time"

	"web/resalegeo/cluster"
	"web/resalegeo/join"
	"web/resalegeo/table"
)

var (
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
	memprofile  = flag.String("memprofile", "", "write memory profile to file")
	heapprofile = flag.String("heapprofile", "", "write heap profile to file")
	numPoints   = flag.Int("points", 2000, "number of reference points to generate")
	numRecords  = flag.Int("records", 200000, "number of records to join")
	fixedK      = flag.Int("k", 0, "cluster count, 0 sweeps 2..30 by silhouette")
	testall     = flag.Bool("testall", false, "test all configurations")
)

// Singapore bounding box.
const (
	minLat, maxLat = 1.22, 1.47
	minLon, maxLon = 103.60, 104.05
)

// generateReferencePoints creates n random points within Singapore
func generateReferencePoints(n int) []cluster.ReferencePoint {
	// Use deterministic seed for reproducibility
	r := rand.New(rand.NewSource(42))
	points := make([]cluster.ReferencePoint, n)
	for i := range points {
		points[i] = cluster.ReferencePoint{
			ID:  "p" + strconv.Itoa(i),
			Lat: minLat + r.Float64()*(maxLat-minLat),
			Lon: minLon + r.Float64()*(maxLon-minLon),
		}
	}
	return points
}

func generateRecords(n int) []table.Record {
	r := rand.New(rand.NewSource(7))
	records := make([]table.Record, n)
	for i := range records {
		records[i] = table.Record{
			join.DefaultLatField: minLat + r.Float64()*(maxLat-minLat),
			join.DefaultLonField: minLon + r.Float64()*(maxLon-minLon),
		}
	}
	return records
}

type result struct {
	k          int
	selectTime time.Duration
	joinTime   time.Duration
	allocMB    float64
	gcRuns     uint32
}

func profile(points []cluster.ReferencePoint, records []table.Record, k int) (result, error) {
	job := cluster.TransitJob()
	job.Config.K = k

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)

	start := time.Now()
	res, err := job.Run(points, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	if err != nil {
		return result{}, err
	}
	selectTime := time.Since(start)

	joiner, err := join.New(join.TransitSpec(), res.Table)
	if err != nil {
		return result{}, err
	}
	start = time.Now()
	if _, err := joiner.Join(records); err != nil {
		return result{}, err
	}
	joinTime := time.Since(start)

	runtime.ReadMemStats(&after)
	return result{
		k:          res.Assignment.K,
		selectTime: selectTime,
		joinTime:   joinTime,
		allocMB:    float64(after.TotalAlloc-before.TotalAlloc) / 1024 / 1024,
		gcRuns:     after.NumGC - before.NumGC,
	}, nil
}

func runSingleProfile(numPoints, numRecords, k int) {
	fmt.Printf("Profiling %d reference points and %d records (k=%d)\n", numPoints, numRecords, k)

	res, err := profile(generateReferencePoints(numPoints), generateRecords(numRecords), k)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Profile failed: %v\n", err)
		return
	}

	fmt.Printf("Selected k=%d in %v\n", res.k, res.selectTime)
	fmt.Printf("Joined %d records in %v\n", numRecords, res.joinTime)
	fmt.Printf("Memory allocated: %.2f MB\n", res.allocMB)
}

func runProfileBattery() {
	pointCounts := []int{200, 1000, 5000}
	recordCounts := []int{10000, 100000}
	ks := []int{0, 25}

	fmt.Println("Running comprehensive profile battery...")
	fmt.Println("=======================================")

	// Table header
	fmt.Printf("%-8s | %-8s | %-6s | %-5s | %-15s | %-15s | %-11s | %-7s\n",
		"Points", "Records", "Mode", "K", "Select", "Join", "Memory (MB)", "GC Runs")
	fmt.Printf("%s\n", "----------------------------------------------------------------------------------------------")

	for _, n := range pointCounts {
		points := generateReferencePoints(n)
		for _, m := range recordCounts {
			records := generateRecords(m)
			for _, k := range ks {
				mode := "fixed"
				if k == 0 {
					mode = "sweep"
				}
				res, err := profile(points, records, k)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Profile failed: %v\n", err)
					continue
				}
				fmt.Printf("%-8d | %-8d | %-6s | %-5d | %-15s | %-15s | %-11.2f | %-7d\n",
					n, m, mode, res.k, res.selectTime, res.joinTime, res.allocMB, res.gcRuns)
			}
		}
		fmt.Printf("%s\n", "----------------------------------------------------------------------------------------------")
	}
}

func main() {
	flag.Parse()

	// Set up CPU profiling if requested
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			return
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			return
		}
		defer pprof.StopCPUProfile()
	}

	if *testall {
		runProfileBattery()
	} else {
		runSingleProfile(*numPoints, *numRecords, *fixedK)
	}

	// Write memory profile if requested
	if *memprofile != "" {
		f, err := os.Create(*memprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create memory profile: %v\n", err)
			return
		}
		defer f.Close()
		runtime.GC()
		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write memory profile: %v\n", err)
		}
	}

	if *heapprofile != "" {
		f, err := os.Create(*heapprofile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create heap profile: %v\n", err)
			return
		}
		defer f.Close()

		heap := pprof.Lookup("heap")
		if heap == nil {
			fmt.Fprintf(os.Stderr, "Could not find heap profile\n")
			return
		}
		if err := heap.WriteTo(f, 0); err != nil {
			fmt.Fprintf(os.Stderr, "Could not write heap profile: %v\n", err)
		}
	}
}
