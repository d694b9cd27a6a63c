/*
Package stream allows to build and run audio streaming pipelines.

# Concept

A pipeline is a directed graph of components rooted at a single source.
Bytes are pulled from sources and pushed to sinks:

	Source - the origin of bytes;
	Filter - both sink and source, transforms bytes on the way;
	Sink - the destination of bytes.

Every chunk of bytes is a Packet. A packet carries metadata only when the
metadata of its source has changed, so sinks see format and content
changes exactly before the bytes produced under them.

# Building

Pipelines are built with a cursor. To connects a sink to the cursor and
moves the cursor to the sink if it's a filter. Find moves the cursor back
to build forks:

	p, err := stream.NewBuilder(source).
	    To(volume).
	    To(speaker).
	    Find(source).
	    To(broadcast).
	    Build()

# Execution

Start opens all sinks in breadth-first order and starts one connection per
source. With multiple sinks a connection delivers every chunk to all of
them concurrently and waits before pulling the next one, so the slowest
sink paces its siblings:

	err := p.Start(ctx)
	...
	err = p.Wait()

A failure of any sink stops its connection. Sibling filters are closed with
the error, so their readers receive it too.

# Source replacement

MultiSource is a source whose upstream can be replaced while the pipeline
is running. Downstream components never observe the end of a replaced
source.
*/
package stream
