// Package job tracks background work for the file manager.
//
// Three kinds of work are backgrounded:
//   - external applications run from filestorm (commands);
//   - goroutines that perform auxiliary work (tasks), like counting the
//     size of directories;
//   - goroutines that perform important work (operations), like file
//     copying and deletion.
//
// Jobs marked menu-visible can be viewed via the jobs menu: tasks,
// operations and commands started by RunExternal always are, commands
// started by RunExternalJob only with FlagMenuVisible. Tasks and operations can
// provide progress information for displaying it in the UI, and
// operations are displayed on the designated job bar.
//
// A dedicated drain goroutine reads data from the error streams of
// external applications; the collected output is then displayed by the
// foreground goroutine. The drain worker maintains its own list of jobs,
// fed through a hand-off list. Every job with an associated external
// process has the following life cycle:
//  1. Created by the foreground goroutine and passed to the drain worker
//     through the hand-off list, raising the job's use count.
//  2. Its error stream reaches EOF or fails.
//  3. The drain worker drops its hold, lowering the use count.
//  4. The foreground sweep frees the entry once it has stopped and the
//     use count is zero.
//
// The registry of jobs is owned by the foreground goroutine: all list
// mutation, exit callbacks, prompts and final frees happen there, inside
// Registry.Check.
package job
