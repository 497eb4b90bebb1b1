// Package tasks holds the builtin pipeline steps applied to every assembly
// working directory.
//
// RegisterBuiltins installs them in dependency order, which is also the
// order the pipeline runs them in:
//
//   - download_fasta, download_gff, download_gtf, download_cdna mirror the
//     remote files named in the assembly metadata (`fasta`, `gff`, `gtf`,
//     `cdna`) with rsync and decompress them to `<root>.fa`, `<root>.gff`,
//     `<root>.gtf` and `<root>.cdna.fa`. An empty metadata value means the
//     source is not available remotely and the step is skipped.
//   - write_gtf converts `<root>.gff` to `<root>.gtf` with `gffread -T`
//     unless a GTF was supplied remotely.
//   - write_cdna extracts `<root>.cdna.fa` from `<root>.fa` and `<root>.gtf`
//     with `gffread -w` and removes the `<root>.fa.fai` sidecar gffread
//     leaves behind.
//   - write_splice_sites captures the standard output of
//     `hisat2_extract_splice_sites.py <root>.gtf` into `<root>.Splice_sites`.
//   - index_hisat, index_salmon and index_kallisto build the aligner indexes.
//
// Each step decides from the working directory alone whether its inputs are
// present and whether its outputs already exist, so re-running the pipeline
// never re-invokes a tool whose output is on disk. A tool exiting non-zero is
// returned as an error and ends the run.
package tasks
