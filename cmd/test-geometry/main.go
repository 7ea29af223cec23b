package main

import (
	"flag"
	"fmt"
	"os"

	"fogtrack/internal/lib/geo"
	"fogtrack/internal/lib/geometry"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "disc":
		handleDisc()
	case "merge":
		handleMerge()
	case "kml":
		handleKML()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handleDisc() {
	fs := flag.NewFlagSet("disc", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Center latitude")
	lng := fs.Float64("lng", 0, "Center longitude")
	radius := fs.Float64("radius", 0.1, "Radius in miles")
	steps := fs.Int("steps", 18, "Vertices in the disc polygon")

	fs.Parse(os.Args[2:])

	if *lat == 0 && *lng == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geometry disc --lat 37.7749 --lng -122.4194 --radius 0.1")
		os.Exit(1)
	}

	center, err := geo.NewPoint(*lat, *lng)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	ring, err := geo.MakeDisc(center, *radius, *steps)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	g := geometry.FromRing(ring)
	payload, err := geometry.MarshalGeoJSON(g)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Disc: %d vertices, area %.10f deg^2\n", len(ring)-1, geometry.Area(g))
	fmt.Printf("GeoJSON:\n%s\n", payload)
}

func handleMerge() {
	fs := flag.NewFlagSet("merge", flag.ExitOnError)
	lat1 := fs.Float64("lat1", 0, "First center latitude")
	lng1 := fs.Float64("lng1", 0, "First center longitude")
	lat2 := fs.Float64("lat2", 0, "Second center latitude")
	lng2 := fs.Float64("lng2", 0, "Second center longitude")
	radius := fs.Float64("radius", 0.1, "Radius in miles")

	fs.Parse(os.Args[2:])

	if *lat1 == 0 && *lat2 == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geometry merge --lat1 37.7749 --lng1 -122.4194 --lat2 37.7760 --lng2 -122.4194")
		os.Exit(1)
	}

	g := discAt(*lat1, *lng1, *radius)
	merged, err := geometry.Union(g, discAt(*lat2, *lng2, *radius))
	if err != nil {
		fmt.Printf("Merge failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Result kind: %v\n", merged.Kind())
	fmt.Printf("Components:  %d\n", len(merged.MultiPolygon()))
	fmt.Printf("Area:        %.10f deg^2\n", geometry.Area(merged))
	fmt.Printf("Sum of discs: %.10f deg^2\n", geometry.Area(g)*2)
}

func handleKML() {
	fs := flag.NewFlagSet("kml", flag.ExitOnError)
	lat := fs.Float64("lat", 37.7749, "Center latitude")
	lng := fs.Float64("lng", -122.4194, "Center longitude")
	radius := fs.Float64("radius", 0.1, "Radius in miles")

	fs.Parse(os.Args[2:])

	g := discAt(*lat, *lng, *radius)
	if err := geometry.EncodeKML(g, "Test Disc", os.Stdout); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func discAt(lat, lng, radius float64) *geometry.Geometry {
	center, err := geo.NewPoint(lat, lng)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	ring, err := geo.MakeDisc(center, radius, 18)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	return geometry.FromRing(ring)
}

func printUsage() {
	fmt.Println("Geometry engine test utility")
	fmt.Println()
	fmt.Println("Usage: test-geometry <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  disc   Generate a disc polygon around a coordinate")
	fmt.Println("  merge  Union two discs and report the result shape")
	fmt.Println("  kml    Emit a disc as KML on stdout")
	fmt.Println("  help   Show this message")
}
