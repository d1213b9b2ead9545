/*
Package workflow defines workflow interfaces, types, and primitives.

# Workflows

A workflow is a fixed, ordered chain of named steps. Starting a
workflow hands its payload to the first step; each step's output
context becomes the next step's input. The workflow engine owns the
routing: it persists a status record for the workflow instance,
publishes the chain to a task queue and advances it one step at a time
as steps complete.

Workflows are identified by names. By convention these are reverse-DNS
style and are intended to be unique amongst the workflow engine and be
human readable. The workflow names serve as the way to "route" messages
to workflows.

Newly started workflows are given an instance ID. This ID is also the
key of the workflow's status record which callers poll.

# Steps

Steps are identified by name. Step names are also task types: a single
step may be scheduled on its own as a standalone task, in which case it
gets its own ID and status record.

Steps of a single workflow instance run strictly in order: the message
for step N+1 is only published once step N has returned. A failed step
halts the chain. Delivery is at-least-once so steps should tolerate
being run more than once with the same input.

# Context

Step context is JSON. Context is append-only by convention: each step
adds its own field(s) and carries everything it received forward.

# Status

Status records move monotonically through queued, RUNNING and then one
of the terminal statuses SUCCESS or FAILED. See Status.CanTransition.

# Process model

No assumptions should be made about the state of the workflow object
receiving method calls. Assume it's a shared object and that multiple
calls of the methods on the same object will be running concurrently.
Push any saved state into the storage layers.
*/
package workflow
