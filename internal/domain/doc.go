// Package domain models Argo float profile data and the rules for flattening
// it into rectangular tables.
//
// # Data Source
//
// Profiles come from the Argo Global Data Assembly Centers as NetCDF files,
// one file per cycle (or per float for multi-profile "prof" files). An upstream
// downloader places them in a local directory; this service never fetches them.
//
// # Argo Data Conventions
//
// File names:
//
//	"<mode><float>_<cycle>.nc"  →  e.g. "D2902120_260.nc"
//	mode is R (real-time), D (delayed), or a B/S/M prefix for BGC and synthetic
//	files ("BR", "BD", "SD"...). The float identifier is the WMO number between
//	the mode letters and the underscore. See [FloatIDFromFileName].
//
// Dimensions:
//
//	N_PROF    number of profiles in the file
//	N_LEVELS  number of depth levels per profile (padded to the deepest one)
//	STRING8   width of the PLATFORM_NUMBER character array
//
//	Measurement variables are stored as (N_PROF, N_LEVELS). They are transposed
//	on read so every 2D [Field] is levels × profiles regardless of storage order.
//
// Variables (default configuration):
//
//	PRES       sea water pressure, dbar          → column "depth"
//	TEMP       sea water temperature, °C         → column "temp"
//	PSAL       practical salinity, PSU           → column "sal"
//	LATITUDE   per-profile latitude              → column "lat"
//	LONGITUDE  per-profile longitude             → column "lon"
//	JULD       per-profile time, days since 1950 → column "time" (passed through)
//	PLATFORM_NUMBER  char[N_PROF][8]             → column "float_id"
//
// Missing values:
//
//	Every variable carries a _FillValue (99999.0 for physical parameters,
//	999999.0 for JULD). Elements equal to _FillValue or missing_value, outside
//	[valid_min, valid_max], or non-finite become NaN. Text becomes "" once NUL
//	padding and blanks are trimmed. No other sentinel leaves this package.
//
// # Flattening
//
// A file yields one row per (profile, level), profiles in file order and
// levels in depth order. Rows where every measurement column is missing are
// dropped. Identity columns (lat, lon, time, float_id, source_file) are constant
// within a profile. See [Layout.Flatten].
package domain
